package projection

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// edgePayload is the typed view of an "edge" category event payload.
type edgePayload struct {
	ID     string          `json:"id"`
	Source string          `json:"source"`
	Target string          `json:"target"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func parseEdgePayload(raw json.RawMessage) (edgePayload, error) {
	var p edgePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return edgePayload{}, fmt.Errorf("parse edge payload: %w", err)
	}
	return p, nil
}

func (p edgePayload) uuids() (edgeID, src, dst uuid.UUID, ok bool) {
	var err error
	if edgeID, err = uuid.Parse(p.ID); err != nil {
		return
	}
	if src, err = uuid.Parse(p.Source); err != nil {
		return
	}
	if dst, err = uuid.Parse(p.Target); err != nil {
		return
	}
	ok = true
	return
}

func (p edgePayload) propsOrEmpty() json.RawMessage {
	if len(p.Data) > 0 {
		return p.Data
	}
	return json.RawMessage(`{}`)
}

// mergeEdgeProps shallow-merges an update payload's data onto current
// props, source wins per key, matching the entity merge rule.
func mergeEdgeProps(current json.RawMessage, updateData json.RawMessage) (json.RawMessage, error) {
	if len(updateData) == 0 {
		return current, nil
	}
	var dst map[string]interface{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &dst); err != nil {
			return nil, fmt.Errorf("merge edge props: parse current: %w", err)
		}
	}
	if dst == nil {
		dst = map[string]interface{}{}
	}
	var src map[string]interface{}
	if err := json.Unmarshal(updateData, &src); err != nil {
		return nil, fmt.Errorf("merge edge props: parse update: %w", err)
	}
	for k, v := range src {
		dst[k] = v
	}
	out, err := json.Marshal(dst)
	if err != nil {
		return nil, fmt.Errorf("merge edge props: marshal: %w", err)
	}
	return out, nil
}
