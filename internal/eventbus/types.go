package eventbus

import "encoding/json"

// EventType names a notification published by the projection runner after
// a materialization step. These are distinct from the Event Log's own
// event_type values (create/update/delete) — a bus Event is a
// post-apply notification, never the authoritative record.
type EventType string

const (
	// EventEntityMaterialized fires after the projector writes an entity row.
	EventEntityMaterialized EventType = "entity.materialized"
	// EventEdgeMaterialized fires after the projector writes an edge row.
	EventEdgeMaterialized EventType = "edge.materialized"
	// EventCheckpointAdvanced fires once per successfully applied batch.
	EventCheckpointAdvanced EventType = "checkpoint.advanced"
	// EventJobTransitioned names a job queue state transition. The job
	// queue (internal/jobqueue) holds no bus, so nothing dispatches it.
	EventJobTransitioned EventType = "job.transitioned"
)

// Event is a single notification flowing through the bus.
type Event struct {
	Type       EventType       `json:"type"`
	GraphID    string          `json:"graph_id,omitempty"`
	StreamID   int64           `json:"stream_id,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	JobID      string          `json:"job_id,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// Result aggregates handler responses for an event. Unlike a Session
// Protocol error frame, a Result never rejects or blocks a materialization
// step — the bus is notification-only (SPEC_FULL.md §2, "Event bus /
// fan-out"). Block/Reason exist only so in-process test handlers can
// assert on handler behavior.
type Result struct {
	Block   bool     `json:"block,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
