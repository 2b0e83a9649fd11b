package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(5, "edges_current", MigrateEdgesCurrent)
}

// MigrateEdgesCurrent creates the bitemporal edge table, same
// insert-never-update discipline as entities_current. edge_id identifies
// the logical edge across its full history; (src_id, dst_id, graph_id)
// are carried per-row so a row's endpoints are available without a join
// back to the entity table when checking the dangling-edge invariant.
func MigrateEdgesCurrent(db *sql.DB) error {
	exists, err := tableExists(db, "edges_current")
	if err != nil {
		return fmt.Errorf("check edges_current: %w", err)
	}
	if !exists {
		_, err = db.Exec(`
			CREATE TABLE edges_current (
				row_id     BIGSERIAL PRIMARY KEY,
				edge_id    UUID NOT NULL,
				src_id     UUID NOT NULL,
				dst_id     UUID NOT NULL,
				graph_id   UUID NOT NULL,
				props      JSONB NOT NULL,
				valid_from TIMESTAMPTZ NOT NULL,
				valid_to   TIMESTAMPTZ,
				sys_from   TIMESTAMPTZ NOT NULL DEFAULT now(),
				sys_to     TIMESTAMPTZ
			)
		`)
		if err != nil {
			return fmt.Errorf("create edges_current: %w", err)
		}
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_edges_current_open
		ON edges_current (edge_id)
		WHERE sys_to IS NULL
	`)
	if err != nil {
		return fmt.Errorf("create edges_current open index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_edges_current_graph
		ON edges_current (graph_id)
		WHERE sys_to IS NULL
	`)
	if err != nil {
		return fmt.Errorf("create edges_current graph index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_edges_current_src
		ON edges_current (src_id)
		WHERE sys_to IS NULL
	`)
	if err != nil {
		return fmt.Errorf("create edges_current src index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_edges_current_dst
		ON edges_current (dst_id)
		WHERE sys_to IS NULL
	`)
	if err != nil {
		return fmt.Errorf("create edges_current dst index: %w", err)
	}
	return nil
}
