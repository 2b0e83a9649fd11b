// Package graphstore is the Graph Materialization Store (spec.md §4.C): a
// passive, bitemporal read model. internal/projection writes its rows
// through writer.go; the job-queue helpers in maintenance.go also write
// (CompactClosedRows deletes old closed rows, RecomputeAttachmentCount
// upserts attachment_counts). Every other caller — session reads, REST,
// stats — goes through the read-only methods here.
package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/graphd/internal/storage/postgres"
)

// Entity is a current (sys_to IS NULL) materialized node row.
type Entity struct {
	EntityID  uuid.UUID       `json:"entity_id"`
	GraphID   uuid.UUID       `json:"graph_id"`
	Doc       json.RawMessage `json:"doc"`
	ValidFrom time.Time       `json:"valid_from"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
	SysFrom   time.Time       `json:"sys_from"`
}

// Edge is a current (sys_to IS NULL) materialized edge row.
type Edge struct {
	EdgeID    uuid.UUID       `json:"edge_id"`
	SrcID     uuid.UUID       `json:"src_id"`
	DstID     uuid.UUID       `json:"dst_id"`
	GraphID   uuid.UUID       `json:"graph_id"`
	Props     json.RawMessage `json:"props"`
	ValidFrom time.Time       `json:"valid_from"`
	ValidTo   *time.Time      `json:"valid_to,omitempty"`
	SysFrom   time.Time       `json:"sys_from"`
}

// Stats aggregates the counts peripheral endpoints surface for a graph
// (spec.md §4.C "Aggregations", supplemented by SPEC_FULL.md §3's stats
// endpoint).
type Stats struct {
	GraphID        uuid.UUID      `json:"graph_id"`
	OpenNodeCount  int64          `json:"open_node_count"`
	OpenEdgeCount  int64          `json:"open_edge_count"`
	EventsPerDay   map[string]int64 `json:"events_per_day"`
}

// Store is a handle onto the materialization tables. Its methods in this
// file only read; maintenance.go's functions write through it.
type Store struct {
	db *sql.DB
}

// New wraps a storage pool as a Graph Materialization Store reader.
func New(store *postgres.Store) *Store {
	return &Store{db: store.DB()}
}

// CurrentEntities returns every open node row for graphID.
func (s *Store) CurrentEntities(ctx context.Context, graphID uuid.UUID) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, graph_id, doc, valid_from, valid_to, sys_from
		FROM entities_current
		WHERE graph_id = $1 AND sys_to IS NULL
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("current_entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.EntityID, &e.GraphID, &e.Doc, &e.ValidFrom, &e.ValidTo, &e.SysFrom); err != nil {
			return nil, fmt.Errorf("current_entities: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CurrentEdges returns every open edge row for graphID.
func (s *Store) CurrentEdges(ctx context.Context, graphID uuid.UUID) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT edge_id, src_id, dst_id, graph_id, props, valid_from, valid_to, sys_from
		FROM edges_current
		WHERE graph_id = $1 AND sys_to IS NULL
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("current_edges: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.EdgeID, &e.SrcID, &e.DstID, &e.GraphID, &e.Props, &e.ValidFrom, &e.ValidTo, &e.SysFrom); err != nil {
			return nil, fmt.Errorf("current_edges: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates open node/edge counts and a per-day event count for
// graphID, joining back through event_streams on the graph's UUID key.
func (s *Store) Stats(ctx context.Context, graphID uuid.UUID) (Stats, error) {
	stats := Stats{GraphID: graphID, EventsPerDay: map[string]int64{}}

	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM entities_current WHERE graph_id = $1 AND sys_to IS NULL
	`, graphID).Scan(&stats.OpenNodeCount); err != nil {
		return Stats{}, fmt.Errorf("stats: open_node_count: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM edges_current WHERE graph_id = $1 AND sys_to IS NULL
	`, graphID).Scan(&stats.OpenEdgeCount); err != nil {
		return Stats{}, fmt.Errorf("stats: open_edge_count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(e.recorded_at, 'YYYY-MM-DD') AS day, count(*)
		FROM events e
		JOIN event_streams st ON st.stream_id = e.stream_id
		WHERE st.key = $1
		GROUP BY day
		ORDER BY day
	`, graphID.String())
	if err != nil {
		return Stats{}, fmt.Errorf("stats: events_per_day: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		var count int64
		if err := rows.Scan(&day, &count); err != nil {
			return Stats{}, fmt.Errorf("stats: events_per_day: scan: %w", err)
		}
		stats.EventsPerDay[day] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("stats: events_per_day: %w", err)
	}
	return stats, nil
}
