package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(1, "event_streams", MigrateEventStreams)
}

// MigrateEventStreams creates the stream registry backing the Event Log:
// one row per (category, key), created on first append and never deleted.
func MigrateEventStreams(db *sql.DB) error {
	exists, err := tableExists(db, "event_streams")
	if err != nil {
		return fmt.Errorf("check event_streams: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`
		CREATE TABLE event_streams (
			stream_id  BIGSERIAL PRIMARY KEY,
			category   TEXT NOT NULL,
			key        TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (category, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("create event_streams: %w", err)
	}
	return nil
}
