package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/graphd/internal/storage/postgres"
	"github.com/steveyegge/graphd/internal/telemetry"
)

const (
	defaultPriority    = 100
	defaultMaxAttempts = 3
)

// Queue is the Job Queue component, owned jointly: producers insert via
// Enqueue, workers mutate via the lease discipline below.
type Queue struct {
	db    *sql.DB
	cache *LeaseCache // nil when Redis is not configured; Queue degrades to DB-only reclaim
}

// New wraps a storage pool as a job queue. cache may be nil.
func New(store *postgres.Store, cache *LeaseCache) *Queue {
	return &Queue{db: store.DB(), cache: cache}
}

// Enqueue inserts a new job in status enqueued, applying spec.md §4.D's
// defaults (priority=100, max_attempts=3, scheduled_at=now()).
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (Job, error) {
	priority := defaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}
	maxAttempts := defaultMaxAttempts
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}
	scheduledAt := time.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	if req.IdempotencyKey != nil {
		if existing, found, err := q.findByIdempotencyKey(ctx, *req.IdempotencyKey); err != nil {
			return Job{}, fmt.Errorf("enqueue: check idempotency key: %w", err)
		} else if found {
			return existing, nil
		}
	}

	job := Job{
		JobID:          uuid.New(),
		Kind:           req.Kind,
		Payload:        payload,
		Status:         StatusEnqueued,
		Priority:       priority,
		MaxAttempts:    maxAttempts,
		CreatedAt:      time.Now().UTC(),
		ScheduledAt:    scheduledAt,
		IdempotencyKey: req.IdempotencyKey,
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, kind, payload, status, priority, max_attempts, created_at, scheduled_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.JobID, job.Kind, []byte(job.Payload), job.Status, job.Priority, job.MaxAttempts, job.CreatedAt, job.ScheduledAt, job.IdempotencyKey)
	if err != nil {
		return Job{}, fmt.Errorf("enqueue: %w", err)
	}
	return job, nil
}

func (q *Queue) findByIdempotencyKey(ctx context.Context, key string) (Job, bool, error) {
	row := q.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE idempotency_key = $1`, key)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Lease atomically picks up to max eligible jobs — enqueued or failed,
// scheduled_at elapsed, backoff_until elapsed or absent — ordered (priority ASC,
// created_at ASC), using SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// workers never collide on the same rows.
func (q *Queue) Lease(ctx context.Context, owner string, leaseSeconds int, max int) ([]Job, error) {
	if max <= 0 {
		return nil, nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("lease: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT job_id FROM jobs
		WHERE status IN ('enqueued', 'failed')
		  AND scheduled_at <= now()
		  AND (backoff_until IS NULL OR backoff_until <= now())
		ORDER BY priority ASC, created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, max)
	if err != nil {
		return nil, fmt.Errorf("lease: select candidates: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("lease: scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("lease: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	leaseUntil := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	leased := make([]Job, 0, len(ids))
	for _, id := range ids {
		row := tx.QueryRowContext(ctx, `
			UPDATE jobs SET status = 'leased', lease_owner = $1, lease_until = $2
			WHERE job_id = $3
			RETURNING `+jobColumns, owner, leaseUntil, id)
		job, err := scanJob(row)
		if err != nil {
			return nil, fmt.Errorf("lease: update candidate %s: %w", id, err)
		}
		leased = append(leased, job)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("lease: commit: %w", err)
	}

	if q.cache != nil {
		for _, j := range leased {
			q.cache.TrackLease(ctx, j.JobID, leaseUntil)
		}
	}
	telemetry.Instruments.JobLeaseCount.Add(ctx, int64(len(leased)),
		metric.WithAttributes(attribute.String("status", string(StatusLeased))))
	return leased, nil
}

// Start transitions leased -> running, only for the current lease owner.
func (q *Queue) Start(ctx context.Context, jobID uuid.UUID, owner string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', started_at = now()
		WHERE job_id = $1 AND lease_owner = $2 AND status = 'leased'
	`, jobID, owner)
	return requireRowsAffected(res, err, "start")
}

// ExtendLease pushes lease_until out, only for the current lease owner.
func (q *Queue) ExtendLease(ctx context.Context, jobID uuid.UUID, owner string, leaseSeconds int) error {
	leaseUntil := time.Now().Add(time.Duration(leaseSeconds) * time.Second)
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET lease_until = $1
		WHERE job_id = $2 AND lease_owner = $3 AND status IN ('leased', 'running')
	`, leaseUntil, jobID, owner)
	if err := requireRowsAffected(res, err, "extend_lease"); err != nil {
		return err
	}
	if q.cache != nil {
		q.cache.TrackLease(ctx, jobID, leaseUntil)
	}
	return nil
}

// Complete transitions running -> completed.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, owner string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', finished_at = now()
		WHERE job_id = $1 AND lease_owner = $2 AND status = 'running'
	`, jobID, owner)
	if err := requireRowsAffected(res, err, "complete"); err != nil {
		return err
	}
	if q.cache != nil {
		q.cache.Untrack(ctx, jobID)
	}
	telemetry.Instruments.JobLeaseCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", string(StatusCompleted))))
	return nil
}

// Fail increments attempts and transitions to dead (attempts+1 >=
// max_attempts) or failed with a backoff, per spec.md §4.D. failed jobs
// become leasable again once backoff_until elapses — Lease's predicate
// above includes status = 'failed' for exactly this reason, resolving the
// spec's flagged open question in favor of "failed jobs retry".
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, owner string, backoffSeconds int) error {
	backoffUntil := time.Now().Add(time.Duration(backoffSeconds) * time.Second)
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET
			attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'dead' ELSE 'failed' END,
			backoff_until = $1,
			finished_at = now(),
			lease_owner = NULL,
			lease_until = NULL
		WHERE job_id = $2 AND lease_owner = $3 AND status IN ('leased', 'running')
	`, backoffUntil, jobID, owner)
	if err := requireRowsAffected(res, err, "fail"); err != nil {
		return err
	}
	if q.cache != nil {
		q.cache.Untrack(ctx, jobID)
	}
	telemetry.Instruments.JobLeaseCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", string(StatusFailed))))
	return nil
}

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, jobID uuid.UUID) (Job, error) {
	row := q.db.QueryRowContext(ctx, jobSelectColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return Job{}, postgres.WrapDBErrorf(err, "job %s", jobID)
	}
	return job, nil
}

func requireRowsAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, postgres.ErrConflict)
	}
	return nil
}

const jobColumns = `job_id, kind, payload, status, priority, attempts, max_attempts,
	lease_owner, lease_until, created_at, scheduled_at, started_at, finished_at,
	backoff_until, idempotency_key`

const jobSelectColumns = `SELECT ` + jobColumns

func scanJob(row *sql.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.JobID, &j.Kind, &j.Payload, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.LeaseOwner, &j.LeaseUntil, &j.CreatedAt, &j.ScheduledAt, &j.StartedAt, &j.FinishedAt,
		&j.BackoffUntil, &j.IdempotencyKey,
	)
	return j, err
}
