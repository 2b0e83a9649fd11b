// Package jobqueue implements the Job Queue (spec.md §4.D): a Postgres
// table with skip-locked leasing, a priority/created_at fairness order,
// and a retry/backoff state machine. An optional Redis set mirrors
// in-flight lease expiries; the reclaim sweep still scans the jobs table
// on every tick.
package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a job's position in the state machine (spec.md §4.D).
type Status string

const (
	StatusEnqueued  Status = "enqueued"
	StatusLeased    Status = "leased"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
)

// Job is one row of the queue, every field named in spec.md §3.
type Job struct {
	JobID          uuid.UUID       `json:"job_id"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	Priority       int             `json:"priority"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LeaseOwner     *string         `json:"lease_owner,omitempty"`
	LeaseUntil     *time.Time      `json:"lease_until,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	BackoffUntil   *time.Time      `json:"backoff_until,omitempty"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
}

// EnqueueRequest carries enqueue's optional fields with spec.md §4.D
// defaults applied by Queue.Enqueue when zero-valued.
type EnqueueRequest struct {
	Kind           string
	Payload        json.RawMessage
	Priority       *int
	MaxAttempts    *int
	ScheduledAt    *time.Time
	IdempotencyKey *string
}

// Two concrete job kinds exercise the generic envelope end-to-end
// (SPEC_FULL.md §3), supplementing the distilled spec's abstract "kind"
// field with names a worker actually dispatches on.
const (
	KindAttachmentIndex = "attachment:index"
	KindGraphCompact    = "graph:compact"
)
