package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/telemetry"
)

const (
	actionReadGraph    = "read:graph"
	actionCreateEntity = "create:entity"
	actionUpdateEntity = "update:entity"
	actionDeleteEntity = "delete:entity"
	actionCreateEdge   = "create:edge"
	actionUpdateEdge   = "update:edge"
	actionDeleteEdge   = "delete:edge"
	actionTransform    = "transform:entity"
)

const streamCategoryEntity = "entity"
const streamCategoryEdge = "edge"

// handleAction dispatches one authenticated action message per the table
// in spec.md §4.E. Validation failures emit an error frame and leave the
// state machine untouched, per spec.md §7.
func (s *Session) handleAction(ctx context.Context, f InFrame) error {
	telemetry.Instruments.SessionMessageCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", f.Action)))

	switch f.Action {
	case actionReadGraph:
		return s.doReadGraph(ctx)
	case actionCreateEntity:
		return s.doCreateEntity(ctx, f.Payload)
	case actionUpdateEntity:
		return s.doUpdateEntity(ctx, f.Payload)
	case actionDeleteEntity:
		return s.doDeleteEntity(ctx, f.Payload)
	case actionCreateEdge:
		return s.doCreateEdge(ctx, f.Payload)
	case actionUpdateEdge:
		return s.doUpdateEdge(ctx, f.Payload)
	case actionDeleteEdge:
		return s.doDeleteEdge(ctx, f.Payload)
	case actionTransform:
		return s.send(OutFrame{Type: frameTypeUpdated, Action: f.Action})
	default:
		return s.send(errorFrame(fmt.Sprintf("unknown action %q", f.Action)))
	}
}

func (s *Session) doReadGraph(ctx context.Context) error {
	entities, err := s.store.CurrentEntities(ctx, s.ctx.graphID)
	if err != nil {
		return s.send(errorFrame("failed to read graph"))
	}
	edges, err := s.store.CurrentEdges(ctx, s.ctx.graphID)
	if err != nil {
		return s.send(errorFrame("failed to read graph"))
	}

	nodes, err := json.Marshal(entities)
	if err != nil {
		return s.send(errorFrame("failed to encode nodes"))
	}
	edgeDocs, err := json.Marshal(edges)
	if err != nil {
		return s.send(errorFrame("failed to encode edges"))
	}

	return s.send(OutFrame{Type: frameTypeRead, Nodes: nodes, Edges: edgeDocs})
}

// createEntityRequest is the client payload for create:entity: label,
// position, and arbitrary remaining properties per spec.md §4.E.
type createEntityRequest struct {
	Label      string                 `json:"label"`
	X          *float64               `json:"x,omitempty"`
	Y          *float64               `json:"y,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

func (s *Session) doCreateEntity(ctx context.Context, raw json.RawMessage) error {
	var req createEntityRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.send(errorFrame("malformed create:entity payload"))
	}

	entityID := uuid.New()
	payload := map[string]interface{}{
		"id":    entityID.String(),
		"label": req.Label,
	}
	if req.X != nil || req.Y != nil {
		payload["position"] = map[string]interface{}{"x": req.X, "y": req.Y}
	}
	if req.Properties != nil {
		payload["properties"] = req.Properties
	}

	eventPayload, err := json.Marshal(payload)
	if err != nil {
		return s.send(errorFrame("failed to encode entity"))
	}

	if _, err := s.log.Append(ctx, eventlog.AppendRequest{
		Category:  streamCategoryEntity,
		Key:       s.ctx.graphID.String(),
		EventType: "create",
		Payload:   eventPayload,
	}); err != nil {
		return s.send(errorFrame("failed to create entity"))
	}

	return s.send(OutFrame{Type: frameTypeCreated, Action: actionCreateEntity, Entity: eventPayload})
}

// updateEntityRequest requires entity.id; x/y are normalized into a
// position object when present, per spec.md §4.E.
type updateEntityRequest struct {
	Entity map[string]interface{} `json:"entity"`
}

func (s *Session) doUpdateEntity(ctx context.Context, raw json.RawMessage) error {
	var req updateEntityRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Entity == nil {
		return s.send(errorFrame("malformed update:entity payload"))
	}
	id, ok := req.Entity["id"].(string)
	if !ok || id == "" {
		return s.send(errorFrame("update:entity requires entity.id"))
	}
	if _, err := uuid.Parse(id); err != nil {
		return s.send(errorFrame("entity.id is not a valid uuid"))
	}

	normalizePosition(req.Entity)

	eventPayload, err := json.Marshal(req.Entity)
	if err != nil {
		return s.send(errorFrame("failed to encode entity"))
	}

	if _, err := s.log.Append(ctx, eventlog.AppendRequest{
		Category:  streamCategoryEntity,
		Key:       s.ctx.graphID.String(),
		EventType: "update",
		Payload:   eventPayload,
	}); err != nil {
		return s.send(errorFrame("failed to update entity"))
	}

	return s.send(OutFrame{Type: frameTypeUpdated, Action: actionUpdateEntity, Entity: eventPayload})
}

// normalizePosition folds loose x/y keys into a nested position object,
// leaving an already-nested position untouched.
func normalizePosition(doc map[string]interface{}) {
	x, hasX := doc["x"]
	y, hasY := doc["y"]
	if !hasX && !hasY {
		return
	}
	doc["position"] = map[string]interface{}{"x": x, "y": y}
	delete(doc, "x")
	delete(doc, "y")
}

type deleteEntityRequest struct {
	Entity struct {
		ID string `json:"id"`
	} `json:"entity"`
}

func (s *Session) doDeleteEntity(ctx context.Context, raw json.RawMessage) error {
	var req deleteEntityRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Entity.ID == "" {
		return s.send(errorFrame("delete:entity requires entity.id"))
	}
	if _, err := uuid.Parse(req.Entity.ID); err != nil {
		return s.send(errorFrame("entity.id is not a valid uuid"))
	}

	eventPayload, err := json.Marshal(map[string]interface{}{
		"entity": map[string]interface{}{"id": req.Entity.ID},
	})
	if err != nil {
		return s.send(errorFrame("failed to encode entity"))
	}

	if _, err := s.log.Append(ctx, eventlog.AppendRequest{
		Category:  streamCategoryEntity,
		Key:       s.ctx.graphID.String(),
		EventType: "delete",
		Payload:   eventPayload,
	}); err != nil {
		return s.send(errorFrame("failed to delete entity"))
	}

	return s.send(OutFrame{Type: frameTypeDeleted, Action: actionDeleteEntity, Entity: eventPayload})
}

type createEdgeRequest struct {
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

func (s *Session) doCreateEdge(ctx context.Context, raw json.RawMessage) error {
	var req createEdgeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.send(errorFrame("malformed create:edge payload"))
	}
	if _, err := uuid.Parse(req.Source); err != nil {
		return s.send(errorFrame("source is not a valid uuid"))
	}
	if _, err := uuid.Parse(req.Target); err != nil {
		return s.send(errorFrame("target is not a valid uuid"))
	}

	edgeID := uuid.New()
	payload := map[string]interface{}{
		"id":     edgeID.String(),
		"source": req.Source,
		"target": req.Target,
	}
	if req.Properties != nil {
		payload["data"] = req.Properties
	}

	eventPayload, err := json.Marshal(payload)
	if err != nil {
		return s.send(errorFrame("failed to encode edge"))
	}

	if _, err := s.log.Append(ctx, eventlog.AppendRequest{
		Category:  streamCategoryEdge,
		Key:       s.ctx.graphID.String(),
		EventType: "create",
		Payload:   eventPayload,
	}); err != nil {
		return s.send(errorFrame("failed to create edge"))
	}

	return s.send(OutFrame{Type: frameTypeCreated, Action: actionCreateEdge, Edge: eventPayload})
}

type updateEdgeRequest struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data,omitempty"`
}

func (s *Session) doUpdateEdge(ctx context.Context, raw json.RawMessage) error {
	var req updateEdgeRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ID == "" {
		return s.send(errorFrame("update:edge requires id"))
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		return s.send(errorFrame("id is not a valid uuid"))
	}

	payload := map[string]interface{}{"id": req.ID}
	if req.Data != nil {
		payload["data"] = req.Data
	}
	eventPayload, err := json.Marshal(payload)
	if err != nil {
		return s.send(errorFrame("failed to encode edge"))
	}

	if _, err := s.log.Append(ctx, eventlog.AppendRequest{
		Category:  streamCategoryEdge,
		Key:       s.ctx.graphID.String(),
		EventType: "update",
		Payload:   eventPayload,
	}); err != nil {
		return s.send(errorFrame("failed to update edge"))
	}

	return s.send(OutFrame{Type: frameTypeUpdated, Action: actionUpdateEdge, Edge: eventPayload})
}

type deleteEdgeRequest struct {
	ID string `json:"id"`
}

func (s *Session) doDeleteEdge(ctx context.Context, raw json.RawMessage) error {
	var req deleteEdgeRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.ID == "" {
		return s.send(errorFrame("delete:edge requires id"))
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		return s.send(errorFrame("id is not a valid uuid"))
	}

	eventPayload, err := json.Marshal(map[string]interface{}{"id": req.ID})
	if err != nil {
		return s.send(errorFrame("failed to encode edge"))
	}

	if _, err := s.log.Append(ctx, eventlog.AppendRequest{
		Category:  streamCategoryEdge,
		Key:       s.ctx.graphID.String(),
		EventType: "delete",
		Payload:   eventPayload,
	}); err != nil {
		return s.send(errorFrame("failed to delete edge"))
	}

	return s.send(OutFrame{Type: frameTypeDeleted, Action: actionDeleteEdge, Edge: eventPayload})
}
