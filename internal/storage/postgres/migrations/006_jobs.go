package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(6, "jobs", MigrateJobs)
}

// MigrateJobs creates the job queue table with every field named in the
// data model (spec.md §3) and the indexes lease() needs to pick
// (priority ASC, created_at ASC) under SELECT ... FOR UPDATE SKIP LOCKED
// without a full table scan.
func MigrateJobs(db *sql.DB) error {
	exists, err := tableExists(db, "jobs")
	if err != nil {
		return fmt.Errorf("check jobs: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`
		CREATE TABLE jobs (
			job_id          UUID PRIMARY KEY,
			kind            TEXT NOT NULL,
			payload         JSONB NOT NULL,
			status          TEXT NOT NULL DEFAULT 'enqueued',
			priority        INTEGER NOT NULL DEFAULT 100,
			attempts        INTEGER NOT NULL DEFAULT 0,
			max_attempts    INTEGER NOT NULL DEFAULT 3,
			lease_owner     TEXT,
			lease_until     TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			scheduled_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at      TIMESTAMPTZ,
			finished_at     TIMESTAMPTZ,
			backoff_until   TIMESTAMPTZ,
			idempotency_key TEXT,
			CONSTRAINT jobs_status_check CHECK (
				status IN ('enqueued', 'leased', 'running', 'completed', 'failed', 'dead')
			)
		)
	`)
	if err != nil {
		return fmt.Errorf("create jobs: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX idx_jobs_lease_candidates
		ON jobs (priority, created_at)
		WHERE status IN ('enqueued', 'failed')
	`)
	if err != nil {
		return fmt.Errorf("create jobs lease index: %w", err)
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX idx_jobs_idempotency_key
		ON jobs (idempotency_key)
		WHERE idempotency_key IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("create jobs idempotency_key index: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX idx_jobs_lease_expiry
		ON jobs (lease_until)
		WHERE status IN ('leased', 'running')
	`)
	if err != nil {
		return fmt.Errorf("create jobs lease expiry index: %w", err)
	}
	return nil
}
