package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The methods in this file are the only insert/close path into
// entities_current/edges_current (maintenance.go's CompactClosedRows
// deletes old closed rows). Only internal/projection calls them;
// every write is an upsert-by-key — close any current open row, insert a
// fresh one — never an in-place UPDATE of doc/props, which is what makes
// replaying an event idempotent at the materialized-view level (spec.md
// §9, "at-least-once projection vs exactly-once materialization").

// UpsertEntity closes the graph/entity's current open row, if any, and
// inserts doc as the new open row, within a single transaction supplied
// by the caller so it composes with the delete-cascade-to-edges step.
func UpsertEntity(ctx context.Context, tx *sql.Tx, graphID, entityID uuid.UUID, doc json.RawMessage, validFrom time.Time, validTo *time.Time) error {
	if err := closeOpenEntity(ctx, tx, graphID, entityID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entities_current (entity_id, graph_id, doc, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5)
	`, entityID, graphID, []byte(doc), validFrom, validTo)
	if err != nil {
		return fmt.Errorf("upsert_entity: insert: %w", err)
	}
	return nil
}

func closeOpenEntity(ctx context.Context, tx *sql.Tx, graphID, entityID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE entities_current SET sys_to = now()
		WHERE graph_id = $1 AND entity_id = $2 AND sys_to IS NULL
	`, graphID, entityID)
	if err != nil {
		return fmt.Errorf("upsert_entity: close prior: %w", err)
	}
	return nil
}

// EntityExists reports whether graphID/entityID has a current open row,
// checked within the caller's transaction so it sees rows the same
// projector batch has not yet committed. Used by the edge-create path to
// enforce the no-dangling-edge invariant (spec.md §4.B).
func EntityExists(ctx context.Context, tx *sql.Tx, graphID, entityID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM entities_current
			WHERE graph_id = $1 AND entity_id = $2 AND sys_to IS NULL
		)
	`, graphID, entityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("entity_exists: %w", err)
	}
	return exists, nil
}

// CurrentEntityDoc loads the open row's doc for an entity, used by update
// to merge onto the existing document. Returns sql.ErrNoRows, unwrapped, if
// no open row exists — callers treat that as a no-op update.
func CurrentEntityDoc(ctx context.Context, tx *sql.Tx, graphID, entityID uuid.UUID) (json.RawMessage, time.Time, *time.Time, error) {
	var doc json.RawMessage
	var validFrom time.Time
	var validTo *time.Time
	err := tx.QueryRowContext(ctx, `
		SELECT doc, valid_from, valid_to FROM entities_current
		WHERE graph_id = $1 AND entity_id = $2 AND sys_to IS NULL
	`, graphID, entityID).Scan(&doc, &validFrom, &validTo)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	return doc, validFrom, validTo, nil
}

// CloseEntity closes the current open entity row, setting valid_to to now
// if it was still open-ended.
func CloseEntity(ctx context.Context, tx *sql.Tx, graphID, entityID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE entities_current
		SET sys_to = now(), valid_to = COALESCE(valid_to, now())
		WHERE graph_id = $1 AND entity_id = $2 AND sys_to IS NULL
	`, graphID, entityID)
	if err != nil {
		return fmt.Errorf("close_entity: %w", err)
	}
	return nil
}

// CloseIncidentEdges closes every open edge row touching entityID, the
// dangling-edge invariant enforcement step that must run in the same
// transaction as the entity's own close.
func CloseIncidentEdges(ctx context.Context, tx *sql.Tx, graphID, entityID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE edges_current
		SET sys_to = now(), valid_to = COALESCE(valid_to, now())
		WHERE graph_id = $1 AND sys_to IS NULL AND (src_id = $2 OR dst_id = $2)
	`, graphID, entityID)
	if err != nil {
		return fmt.Errorf("close_incident_edges: %w", err)
	}
	return nil
}

// UpsertEdge closes the edge's current open row, if any, and inserts
// props as the new open row.
func UpsertEdge(ctx context.Context, tx *sql.Tx, edgeID, srcID, dstID, graphID uuid.UUID, props json.RawMessage, validFrom time.Time, validTo *time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE edges_current SET sys_to = now()
		WHERE edge_id = $1 AND sys_to IS NULL
	`, edgeID)
	if err != nil {
		return fmt.Errorf("upsert_edge: close prior: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges_current (edge_id, src_id, dst_id, graph_id, props, valid_from, valid_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, edgeID, srcID, dstID, graphID, []byte(props), validFrom, validTo)
	if err != nil {
		return fmt.Errorf("upsert_edge: insert: %w", err)
	}
	return nil
}

// CurrentEdge loads an edge's open row for update-merge purposes.
func CurrentEdge(ctx context.Context, tx *sql.Tx, edgeID uuid.UUID) (srcID, dstID uuid.UUID, props json.RawMessage, validFrom time.Time, validTo *time.Time, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT src_id, dst_id, props, valid_from, valid_to
		FROM edges_current WHERE edge_id = $1 AND sys_to IS NULL
	`, edgeID).Scan(&srcID, &dstID, &props, &validFrom, &validTo)
	return
}

// CloseEdge closes the current open edge row.
func CloseEdge(ctx context.Context, tx *sql.Tx, edgeID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE edges_current
		SET sys_to = now(), valid_to = COALESCE(valid_to, now())
		WHERE edge_id = $1 AND sys_to IS NULL
	`, edgeID)
	if err != nil {
		return fmt.Errorf("close_edge: %w", err)
	}
	return nil
}
