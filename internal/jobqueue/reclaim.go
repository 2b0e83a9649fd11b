package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	reclaimInterval   = 5 * time.Second
	reclaimBackoffSec = 10
)

// Reclaimer periodically returns leased/running jobs whose lease_until
// has elapsed to the retry track, treating them as failed without an
// owner (spec.md §4.D, "Lease reclamation"). Not required for
// correctness, but strongly recommended — without it a crashed worker's
// claims never come back.
type Reclaimer struct {
	q *Queue
}

func NewReclaimer(q *Queue) *Reclaimer {
	return &Reclaimer{q: q}
}

// Run ticks every reclaimInterval until ctx is canceled.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				log.WithError(err).Warn("jobqueue: reclaim sweep failed")
			}
		}
	}
}

// sweep reclaims expired leases. When a Redis LeaseCache is configured,
// it first asks Redis which leases it tracked as expired and reclaims
// just those; it always also performs the authoritative Postgres scan
// for leases lease_until may have captured that Redis missed (e.g. if
// the cache was unavailable when a lease was taken).
func (r *Reclaimer) sweep(ctx context.Context) error {
	now := time.Now()

	if r.q.cache != nil {
		ids, err := r.q.cache.ExpiredSince(ctx, now)
		if err != nil {
			log.WithError(err).Warn("jobqueue: lease cache sweep failed, falling back to DB scan")
		} else {
			for _, id := range ids {
				if err := r.reclaimOne(ctx, id); err != nil {
					log.WithError(err).WithField("job_id", id).Warn("jobqueue: failed to reclaim job from cache hint")
				}
			}
		}
	}

	rows, err := r.q.db.QueryContext(ctx, `
		SELECT job_id FROM jobs
		WHERE status IN ('leased', 'running') AND lease_until < now()
		FOR UPDATE SKIP LOCKED
	`)
	if err != nil {
		return fmt.Errorf("reclaim: scan expired leases: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("reclaim: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("reclaim: %w", err)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := r.q.db.ExecContext(ctx, `
			UPDATE jobs SET
				attempts = attempts + 1,
				status = CASE WHEN attempts + 1 >= max_attempts THEN 'dead' ELSE 'failed' END,
				backoff_until = now() + ($2 || ' seconds')::interval,
				finished_at = now(),
				lease_owner = NULL,
				lease_until = NULL
			WHERE job_id = $1 AND status IN ('leased', 'running') AND lease_until < now()
		`, id, reclaimBackoffSec); err != nil {
			log.WithError(err).WithField("job_id", id).Warn("jobqueue: failed to reclaim expired lease")
		}
	}
	return nil
}

func (r *Reclaimer) reclaimOne(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.db.ExecContext(ctx, `
		UPDATE jobs SET
			attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'dead' ELSE 'failed' END,
			backoff_until = now() + ($2 || ' seconds')::interval,
			finished_at = now(),
			lease_owner = NULL,
			lease_until = NULL
		WHERE job_id = $1 AND status IN ('leased', 'running') AND lease_until < now()
	`, id.String(), reclaimBackoffSec)
	return err
}
