package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(3, "event_checkpoints", MigrateEventCheckpoints)
}

// MigrateEventCheckpoints creates the one-row-per-projection checkpoint
// table the Projection Runner resumes from on startup.
func MigrateEventCheckpoints(db *sql.DB) error {
	exists, err := tableExists(db, "event_checkpoints")
	if err != nil {
		return fmt.Errorf("check event_checkpoints: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`
		CREATE TABLE event_checkpoints (
			projection_name TEXT PRIMARY KEY,
			last_seq        BIGINT NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create event_checkpoints: %w", err)
	}
	return nil
}
