package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(4, "entities_current", MigrateEntitiesCurrent)
}

// MigrateEntitiesCurrent creates the bitemporal entity table. Every
// materialization write is an insert, never an UPDATE of doc in place: a
// create/update closes the prior open row (sys_to = now()) and inserts a
// new one, so the table retains full system-time history. The
// "(graph_id, entity_id) primary key scoped to open rows" invariant is
// enforced by a partial unique index rather than a table PK, since closed
// historical rows legitimately repeat the pair.
func MigrateEntitiesCurrent(db *sql.DB) error {
	exists, err := tableExists(db, "entities_current")
	if err != nil {
		return fmt.Errorf("check entities_current: %w", err)
	}
	if !exists {
		_, err = db.Exec(`
			CREATE TABLE entities_current (
				row_id     BIGSERIAL PRIMARY KEY,
				entity_id  UUID NOT NULL,
				graph_id   UUID NOT NULL,
				doc        JSONB NOT NULL,
				valid_from TIMESTAMPTZ NOT NULL,
				valid_to   TIMESTAMPTZ,
				sys_from   TIMESTAMPTZ NOT NULL DEFAULT now(),
				sys_to     TIMESTAMPTZ
			)
		`)
		if err != nil {
			return fmt.Errorf("create entities_current: %w", err)
		}
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_current_open
		ON entities_current (graph_id, entity_id)
		WHERE sys_to IS NULL
	`)
	if err != nil {
		return fmt.Errorf("create entities_current open index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entities_current_graph
		ON entities_current (graph_id)
		WHERE sys_to IS NULL
	`)
	if err != nil {
		return fmt.Errorf("create entities_current graph index: %w", err)
	}
	return nil
}
