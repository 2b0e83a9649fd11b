package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(2, "events", MigrateEvents)
}

// MigrateEvents creates the append-only event log itself. seq is the
// BIGSERIAL global monotonic order used by the projector; version is the
// caller-facing per-stream counter enforced contiguous by the Event Log's
// append transaction, never by a database constraint.
func MigrateEvents(db *sql.DB) error {
	exists, err := tableExists(db, "events")
	if err != nil {
		return fmt.Errorf("check events: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`
		CREATE TABLE events (
			seq             BIGSERIAL PRIMARY KEY,
			stream_id       BIGINT NOT NULL REFERENCES event_streams(stream_id),
			version         INTEGER NOT NULL,
			event_type      TEXT NOT NULL,
			payload         JSONB NOT NULL,
			valid_from      TIMESTAMPTZ NOT NULL,
			valid_to        TIMESTAMPTZ,
			recorded_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			correlation_id  UUID,
			causation_id    UUID,
			idempotency_key TEXT,
			UNIQUE (stream_id, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("create events: %w", err)
	}

	// Partial unique index: idempotency_key only needs to be unique per
	// stream when present, mirroring the spec's "unique when key present".
	_, err = db.Exec(`
		CREATE UNIQUE INDEX idx_events_stream_idempotency_key
		ON events (stream_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("create idempotency_key index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX idx_events_seq ON events (seq)`)
	if err != nil {
		return fmt.Errorf("create seq index: %w", err)
	}
	return nil
}
