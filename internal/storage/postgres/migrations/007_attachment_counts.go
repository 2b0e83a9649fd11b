package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(7, "attachment_counts", MigrateAttachmentCounts)
}

// MigrateAttachmentCounts backs the supplemented "attachment_index"
// projection (SPEC_FULL.md §3): a per-graph running count of
// attachment:add events, the second named projection the spec's design
// notes invite for event categories the primary materializer ignores.
func MigrateAttachmentCounts(db *sql.DB) error {
	exists, err := tableExists(db, "attachment_counts")
	if err != nil {
		return fmt.Errorf("check attachment_counts: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`
		CREATE TABLE attachment_counts (
			graph_id UUID PRIMARY KEY,
			count    BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create attachment_counts: %w", err)
	}
	return nil
}
