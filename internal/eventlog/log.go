package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/steveyegge/graphd/internal/storage/postgres"
	"github.com/steveyegge/graphd/internal/telemetry"
)

var appendTracer = telemetry.Tracer("github.com/steveyegge/graphd/eventlog")

const pgUniqueViolation = "23505"

func asUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Log is the Event Log component. It owns the event_streams and events
// tables exclusively: nothing else in graphd writes to them.
type Log struct {
	db *sql.DB
}

// New wraps a storage pool as an Event Log.
func New(store *postgres.Store) *Log {
	return &Log{db: store.DB()}
}

// EnsureStream upserts a stream row for (category, key); idempotent.
func (l *Log) EnsureStream(ctx context.Context, category, key string) (Stream, error) {
	return l.ensureStreamTx(ctx, l.db, category, key)
}

func (l *Log) ensureStreamTx(ctx context.Context, q querier, category, key string) (Stream, error) {
	var s Stream
	err := q.QueryRowContext(ctx, `
		INSERT INTO event_streams (category, key)
		VALUES ($1, $2)
		ON CONFLICT (category, key) DO UPDATE SET category = EXCLUDED.category
		RETURNING stream_id, category, key, created_at
	`, category, key).Scan(&s.StreamID, &s.Category, &s.Key, &s.CreatedAt)
	if err != nil {
		return Stream{}, fmt.Errorf("ensure_stream: %w", err)
	}
	return s, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting ensureStreamTx
// run either standalone or inside Append's transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Append commits a new event to the stream named by (category, key),
// creating the stream on first use. Serializes per stream via a
// transactional max(version) read plus insert, so two concurrent appends
// to the same stream can never both observe the same next_version.
func (l *Log) Append(ctx context.Context, req AppendRequest) (Event, error) {
	ctx, span := appendTracer.Start(ctx, "eventlog.append")
	start := time.Now()
	defer func() {
		telemetry.Instruments.AppendLatencyMs.Record(ctx, float64(time.Since(start).Milliseconds()))
		span.End()
	}()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, fmt.Errorf("append: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stream, err := l.ensureStreamTx(ctx, tx, req.Category, req.Key)
	if err != nil {
		return Event{}, err
	}

	if req.IdempotencyKey != nil {
		existing, found, err := findByIdempotencyKey(ctx, tx, stream.StreamID, *req.IdempotencyKey)
		if err != nil {
			return Event{}, fmt.Errorf("append: check idempotency key: %w", err)
		}
		if found {
			return existing, tx.Commit()
		}
	}

	var currentVersion sql.NullInt32
	if err := tx.QueryRowContext(ctx,
		`SELECT max(version) FROM events WHERE stream_id = $1`, stream.StreamID,
	).Scan(&currentVersion); err != nil {
		return Event{}, fmt.Errorf("append: read current version: %w", err)
	}

	nextVersion := int32(1)
	if currentVersion.Valid {
		nextVersion = currentVersion.Int32 + 1
	}

	if req.ExpectedVersion != nil && *req.ExpectedVersion+1 != nextVersion {
		return Event{}, fmt.Errorf("append: %w", postgres.ErrOptimisticConflict)
	}

	if req.ValidFrom.IsZero() {
		req.ValidFrom = time.Now().UTC()
	}

	var ev Event
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (
			stream_id, version, event_type, payload, valid_from, valid_to,
			correlation_id, causation_id, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq, stream_id, version, event_type, payload, valid_from,
			valid_to, recorded_at, correlation_id, causation_id, idempotency_key
	`,
		stream.StreamID, nextVersion, req.EventType, []byte(req.Payload),
		req.ValidFrom, req.ValidTo, req.CorrelationID, req.CausationID, req.IdempotencyKey,
	).Scan(
		&ev.Seq, &ev.StreamID, &ev.Version, &ev.EventType, &ev.Payload,
		&ev.ValidFrom, &ev.ValidTo, &ev.RecordedAt, &ev.CorrelationID,
		&ev.CausationID, &ev.IdempotencyKey,
	)
	if err != nil {
		if asUniqueViolation(err) {
			// Lost a race against a concurrent append with the same
			// idempotency key; the other writer committed first, so
			// re-read and return its event rather than erroring. The
			// failed insert aborted tx, so the re-read goes through l.db.
			if req.IdempotencyKey != nil {
				existing, found, lookupErr := findByIdempotencyKey(ctx, l.db, stream.StreamID, *req.IdempotencyKey)
				if lookupErr == nil && found {
					return existing, nil
				}
			}
			return Event{}, fmt.Errorf("append: %w", postgres.ErrOptimisticConflict)
		}
		return Event{}, fmt.Errorf("append: insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Event{}, fmt.Errorf("append: commit: %w", err)
	}
	return ev, nil
}

func findByIdempotencyKey(ctx context.Context, q querier, streamID int64, key string) (Event, bool, error) {
	var ev Event
	err := q.QueryRowContext(ctx, `
		SELECT seq, stream_id, version, event_type, payload, valid_from,
			valid_to, recorded_at, correlation_id, causation_id, idempotency_key
		FROM events
		WHERE stream_id = $1 AND idempotency_key = $2
	`, streamID, key).Scan(
		&ev.Seq, &ev.StreamID, &ev.Version, &ev.EventType, &ev.Payload,
		&ev.ValidFrom, &ev.ValidTo, &ev.RecordedAt, &ev.CorrelationID,
		&ev.CausationID, &ev.IdempotencyKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	return ev, true, nil
}

// EventsAfter returns events with seq > after, ordered by seq, capped at
// limit. The projector's only read path into the log.
func (l *Log) EventsAfter(ctx context.Context, after int64, limit int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, stream_id, version, event_type, payload, valid_from,
			valid_to, recorded_at, correlation_id, causation_id, idempotency_key
		FROM events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("events_after: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(
			&ev.Seq, &ev.StreamID, &ev.Version, &ev.EventType, &ev.Payload,
			&ev.ValidFrom, &ev.ValidTo, &ev.RecordedAt, &ev.CorrelationID,
			&ev.CausationID, &ev.IdempotencyKey,
		); err != nil {
			return nil, fmt.Errorf("events_after: scan: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events_after: %w", err)
	}
	return out, nil
}

// StreamByID loads a stream's (category, key) for routing purposes; the
// projector uses this to recover a stream's key (the graph UUID) for an
// event it is applying.
func (l *Log) StreamByID(ctx context.Context, streamID int64) (Stream, error) {
	var s Stream
	err := l.db.QueryRowContext(ctx, `
		SELECT stream_id, category, key, created_at FROM event_streams WHERE stream_id = $1
	`, streamID).Scan(&s.StreamID, &s.Category, &s.Key, &s.CreatedAt)
	if err != nil {
		return Stream{}, postgres.WrapDBErrorf(err, "stream %d", streamID)
	}
	return s, nil
}
