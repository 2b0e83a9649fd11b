package projection

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// entityPayload is the typed view of an "entity" category event payload.
// Unknown extra keys are tolerated (forward-compat); only the id is
// required, given either top-level or as entity.id (the delete shape).
type entityPayload struct {
	ID     string `json:"id"`
	Entity *struct {
		ID string `json:"id"`
	} `json:"entity,omitempty"`
	Label      string          `json:"label,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func parseEntityPayload(raw json.RawMessage) (entityPayload, uuid.UUID, error) {
	var p entityPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return entityPayload{}, uuid.UUID{}, fmt.Errorf("parse entity payload: %w", err)
	}
	rawID := p.ID
	if rawID == "" && p.Entity != nil {
		rawID = p.Entity.ID
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return entityPayload{}, uuid.UUID{}, fmt.Errorf("entity payload missing valid id: %w", err)
	}
	return p, id, nil
}

// normalizeEntityDoc builds the materialized doc for a create: lifts
// label/entity_type out of data onto the top level, then mirrors
// entity_type back into doc.data.label per spec.md §4.B.
func normalizeEntityDoc(p entityPayload) (json.RawMessage, error) {
	data := map[string]interface{}{}
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &data); err != nil {
			return nil, fmt.Errorf("normalize entity doc: parse data: %w", err)
		}
	}

	label := p.Label
	entityType := p.EntityType
	if label == "" {
		if v, ok := data["label"].(string); ok {
			label = v
		}
	}
	if entityType == "" {
		if v, ok := data["entity_type"].(string); ok {
			entityType = v
		}
	}
	if entityType != "" {
		data["label"] = entityType
	}
	if label == "" {
		label = entityType
	}

	doc := map[string]interface{}{
		"label": label,
		"data":  data,
	}
	if entityType != "" {
		doc["entity_type"] = entityType
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize entity doc: marshal: %w", err)
	}
	return out, nil
}

// mergeEntityDoc applies an "update" payload onto the current doc per the
// merge rules in spec.md §4.B: skip "id", shallow-merge "data"
// (source wins per key), replace every other key, then re-normalize.
func mergeEntityDoc(current json.RawMessage, updatePayload json.RawMessage) (json.RawMessage, error) {
	var dst map[string]interface{}
	if err := json.Unmarshal(current, &dst); err != nil {
		return nil, fmt.Errorf("merge entity doc: parse current: %w", err)
	}
	var src map[string]interface{}
	if err := json.Unmarshal(updatePayload, &src); err != nil {
		return nil, fmt.Errorf("merge entity doc: parse update: %w", err)
	}

	dstData, _ := dst["data"].(map[string]interface{})
	if dstData == nil {
		dstData = map[string]interface{}{}
	}

	for k, v := range src {
		if k == "id" {
			continue
		}
		if k == "data" {
			srcData, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			for dk, dv := range srcData {
				dstData[dk] = dv
			}
			continue
		}
		dst[k] = v
	}
	dst["data"] = dstData

	label, _ := dst["label"].(string)
	entityType, _ := dst["entity_type"].(string)
	if entityType == "" {
		if v, ok := dstData["entity_type"].(string); ok {
			entityType = v
			dst["entity_type"] = v
		}
	}
	if entityType != "" {
		dstData["label"] = entityType
		dst["label"] = entityType
	} else if label != "" {
		dst["label"] = label
	}
	dst["data"] = dstData

	out, err := json.Marshal(dst)
	if err != nil {
		return nil, fmt.Errorf("merge entity doc: marshal: %w", err)
	}
	return out, nil
}
