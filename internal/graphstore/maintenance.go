package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecomputeAttachmentCount rebuilds attachment_counts for graphID from
// the event log directly, used by the jobqueue's attachment:index
// handler for backfill/repair rather than the incremental path the
// attachment_index projection runs on every new event.
func RecomputeAttachmentCount(ctx context.Context, s *Store, graphID uuid.UUID) error {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM events e
		JOIN event_streams st ON st.stream_id = e.stream_id
		WHERE st.category = 'attachment' AND st.key = $1 AND e.event_type = 'attachment:add'
	`, graphID.String()).Scan(&count)
	if err != nil {
		return fmt.Errorf("recompute_attachment_count: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attachment_counts (graph_id, count)
		VALUES ($1, $2)
		ON CONFLICT (graph_id) DO UPDATE SET count = EXCLUDED.count
	`, graphID, count)
	if err != nil {
		return fmt.Errorf("recompute_attachment_count: upsert: %w", err)
	}
	return nil
}

// CompactClosedRows deletes closed (sys_to IS NOT NULL) historical rows
// older than olderThanDays for a graph, from both materialization
// tables. Current rows (sys_to IS NULL) are never touched — compaction
// prunes bitemporal history, not live state.
func CompactClosedRows(ctx context.Context, s *Store, graphID uuid.UUID, olderThanDays int) error {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("compact_closed_rows: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entities_current WHERE graph_id = $1 AND sys_to IS NOT NULL AND sys_to < $2
	`, graphID, cutoff); err != nil {
		return fmt.Errorf("compact_closed_rows: entities: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM edges_current WHERE graph_id = $1 AND sys_to IS NOT NULL AND sys_to < $2
	`, graphID, cutoff); err != nil {
		return fmt.Errorf("compact_closed_rows: edges: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("compact_closed_rows: commit: %w", err)
	}
	return nil
}
