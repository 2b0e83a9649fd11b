// Package projection implements the Projection Runner (spec.md §4.B): a
// single background task per named projection that batches events off the
// Event Log, applies them idempotently into the Graph Materialization
// Store, and advances its checkpoint to the last successfully applied
// event, never past a failed one.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/steveyegge/graphd/internal/eventbus"
	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/storage/postgres"
	"github.com/steveyegge/graphd/internal/telemetry"
)

var runnerTracer = telemetry.Tracer("github.com/steveyegge/graphd/projection")

const (
	// batchSize is the number of events fetched per events_after call.
	batchSize = 500

	// idleSleep is how long the loop sleeps when a batch comes back empty.
	idleSleep = 1500 * time.Millisecond

	// applyBackoff is the pause after a failed apply before retrying the
	// same event, per spec.md §4.B: "back off ~2s, do not advance the
	// checkpoint past the failure".
	applyBackoff = 2 * time.Second
)

// GraphMaterializer is the one projection name defined by the spec.
const GraphMaterializer = "graph_materializer"

// Runner drives a single named projection's batch-then-checkpoint loop.
// Exactly one Runner per projection name may run at a time — the caller
// (cmd/graphd serve) is responsible for the single-instance guarantee via
// a Postgres advisory lock (SPEC_FULL.md §2).
type Runner struct {
	name  string
	db    *sql.DB
	log   *eventlog.Log
	store *graphstore.Store
	bus   *eventbus.Bus

	applyFn func(ctx context.Context, tx *sql.Tx, ev eventlog.Event, graphID uuid.UUID) error
}

// NewGraphMaterializer builds the Runner that maintains entities_current
// and edges_current from the event log.
func NewGraphMaterializer(pgStore *postgres.Store, evLog *eventlog.Log, gs *graphstore.Store, bus *eventbus.Bus) *Runner {
	r := &Runner{name: GraphMaterializer, db: pgStore.DB(), log: evLog, store: gs, bus: bus}
	r.applyFn = r.applyGraphEvent
	return r
}

// NewAttachmentIndexer builds the supplemented "attachment_index"
// projection (SPEC_FULL.md §3): a second, independently-checkpointed
// consumer over the same log that counts attachment:add events per
// graph, exercising the spec's explicit invitation to introduce a new
// named projection for categories the primary one ignores.
func NewAttachmentIndexer(pgStore *postgres.Store, evLog *eventlog.Log, bus *eventbus.Bus) *Runner {
	r := &Runner{name: "attachment_index", db: pgStore.DB(), log: evLog, bus: bus}
	r.applyFn = r.applyAttachmentEvent
	return r
}

// Run executes the checkpoint loop until ctx is canceled. Resumes from the
// persisted checkpoint on every call, so a crash-and-restart replays only
// the unadvanced tail.
func (r *Runner) Run(ctx context.Context) error {
	logf := log.WithField("projection", r.name)
	logf.Info("projection runner starting")

	for {
		if err := ctx.Err(); err != nil {
			logf.Info("projection runner stopping")
			return nil
		}

		lastSeq, err := r.loadCheckpoint(ctx)
		if err != nil {
			logf.WithError(err).Error("failed to load checkpoint, retrying")
			if !sleepCtx(ctx, applyBackoff) {
				return nil
			}
			continue
		}

		events, err := r.log.EventsAfter(ctx, lastSeq, batchSize)
		if err != nil {
			logf.WithError(err).Error("failed to read events, retrying")
			if !sleepCtx(ctx, applyBackoff) {
				return nil
			}
			continue
		}

		if len(events) == 0 {
			if !sleepCtx(ctx, idleSleep) {
				return nil
			}
			continue
		}

		advanced, err := r.applyBatch(ctx, events)
		if err != nil {
			logf.WithError(err).WithField("advanced_to", advanced).Warn("batch apply failed, will retry from last good checkpoint")
			if !sleepCtx(ctx, applyBackoff) {
				return nil
			}
			continue
		}
	}
}

// applyBatch applies events in seq order, persisting the checkpoint after
// the last successful apply. Stops at the first failure without advancing
// past it, yielding at-least-once apply (safe because apply is idempotent).
func (r *Runner) applyBatch(ctx context.Context, events []eventlog.Event) (int64, error) {
	ctx, span := runnerTracer.Start(ctx, "projection.apply_batch")
	start := time.Now()
	defer func() {
		telemetry.Instruments.ProjectorBatchMs.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()

	lastGood := int64(0)
	for _, ev := range events {
		if err := r.applyOne(ctx, ev); err != nil {
			if lastGood > 0 {
				if cpErr := r.saveCheckpoint(ctx, lastGood); cpErr != nil {
					return lastGood, fmt.Errorf("apply event seq=%d: %w (also failed to save checkpoint: %v)", ev.Seq, err, cpErr)
				}
			}
			return lastGood, fmt.Errorf("apply event seq=%d: %w", ev.Seq, err)
		}
		lastGood = ev.Seq
	}
	if err := r.saveCheckpoint(ctx, lastGood); err != nil {
		return lastGood, fmt.Errorf("save checkpoint: %w", err)
	}
	if r.bus != nil && lastGood > 0 {
		_, _ = r.bus.Dispatch(ctx, &eventbus.Event{
			Type: eventbus.EventCheckpointAdvanced,
			Seq:  lastGood,
		})
	}
	return lastGood, nil
}

func (r *Runner) applyOne(ctx context.Context, ev eventlog.Event) error {
	stream, err := r.log.StreamByID(ctx, ev.StreamID)
	if err != nil {
		return fmt.Errorf("resolve stream: %w", err)
	}

	graphID, err := uuid.Parse(stream.Key)
	if err != nil {
		log.WithFields(log.Fields{
			"projection": r.name, "stream_id": ev.StreamID, "key": stream.Key,
		}).Warn("stream key is not a graph UUID, skipping")
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.applyFn(ctx, tx, ev, graphID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if r.bus != nil && r.name == GraphMaterializer {
		var evType eventbus.EventType
		switch stream.Category {
		case "entity":
			evType = eventbus.EventEntityMaterialized
		case "edge":
			evType = eventbus.EventEdgeMaterialized
		}
		if evType != "" {
			_, _ = r.bus.Dispatch(ctx, &eventbus.Event{
				Type:     evType,
				GraphID:  graphID.String(),
				StreamID: ev.StreamID,
				Seq:      ev.Seq,
			})
		}
	}
	return nil
}

func (r *Runner) loadCheckpoint(ctx context.Context) (int64, error) {
	var lastSeq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_seq FROM event_checkpoints WHERE projection_name = $1`, r.name,
	).Scan(&lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	return lastSeq, nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, seq int64) error {
	if seq == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_checkpoints (projection_name, last_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (projection_name) DO UPDATE
		SET last_seq = EXCLUDED.last_seq, updated_at = now()
	`, r.name, seq)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// sleepCtx sleeps for d or returns false early if ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryBackoff builds an exponential backoff for callers that wrap Run in
// a supervising retry loop. It has no elapsed-time limit; the caller's
// context ends it. Nothing in this repository calls it: cmd/graphd serve
// runs Run directly.
func RetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // caller controls lifetime via context cancellation
	return b
}
