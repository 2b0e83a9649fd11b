package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/steveyegge/graphd/internal/graphstore"
)

// Handler processes one leased job's payload. Registered per kind in a
// worker's dispatch table (cmd/graphd worker), grounded on the Rust
// poller's match-on-kind dispatch (crates/worker/src/poller.rs per
// SPEC_FULL.md §3).
type Handler func(ctx context.Context, payload json.RawMessage) error

// attachmentIndexPayload names the graph an attachment:index job
// recomputes the attachment_index projection's running count for.
type attachmentIndexPayload struct {
	GraphID uuid.UUID `json:"graph_id"`
}

// NewAttachmentIndexHandler rebuilds the attachment_counts row for a
// graph by rescanning its attachment stream, used for backfill or repair
// rather than the steady-state incremental path the projector runs.
func NewAttachmentIndexHandler(gs *graphstore.Store) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p attachmentIndexPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("attachment:index: parse payload: %w", err)
		}
		if p.GraphID == uuid.Nil {
			return fmt.Errorf("attachment:index: graph_id is required")
		}
		return graphstore.RecomputeAttachmentCount(ctx, gs, p.GraphID)
	}
}

// graphCompactPayload names the graph whose closed bitemporal rows a
// graph:compact job is allowed to prune.
type graphCompactPayload struct {
	GraphID      uuid.UUID `json:"graph_id"`
	OlderThanDays int      `json:"older_than_days"`
}

// NewGraphCompactHandler deletes closed (sys_to IS NOT NULL) historical
// rows for a graph older than the requested retention window. Current
// (sys_to IS NULL) rows are never touched.
func NewGraphCompactHandler(gs *graphstore.Store) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p graphCompactPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("graph:compact: parse payload: %w", err)
		}
		if p.GraphID == uuid.Nil {
			return fmt.Errorf("graph:compact: graph_id is required")
		}
		if p.OlderThanDays <= 0 {
			p.OlderThanDays = 30
		}
		return graphstore.CompactClosedRows(ctx, gs, p.GraphID, p.OlderThanDays)
	}
}
