// Package eventlog implements the append-only Event Log (spec.md §4.A):
// streams keyed by (category, key), events with a global monotonic seq and
// a per-stream contiguous version, optimistic concurrency via
// expected_version, and idempotency-key no-op replay.
package eventlog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Stream is a named append-only sequence of events, identified by
// (category, key). Created on first append, never deleted.
type Stream struct {
	StreamID  int64     `json:"stream_id"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one immutable, committed record in the log.
type Event struct {
	Seq            int64           `json:"seq"`
	StreamID       int64           `json:"stream_id"`
	Version        int32           `json:"version"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	ValidFrom      time.Time       `json:"valid_from"`
	ValidTo        *time.Time      `json:"valid_to,omitempty"`
	RecordedAt     time.Time       `json:"recorded_at"`
	CorrelationID  *uuid.UUID      `json:"correlation_id,omitempty"`
	CausationID    *uuid.UUID      `json:"causation_id,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

// AppendRequest carries every optional field append() accepts.
type AppendRequest struct {
	Category        string
	Key             string
	EventType       string
	Payload         json.RawMessage
	ValidFrom       time.Time
	ValidTo         *time.Time
	ExpectedVersion *int32
	IdempotencyKey  *string
	CorrelationID   *uuid.UUID
	CausationID     *uuid.UUID
}
