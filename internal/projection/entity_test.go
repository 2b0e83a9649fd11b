package projection

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEntityDocLiftsEntityType(t *testing.T) {
	payload, _, err := parseEntityPayload(json.RawMessage(`{
		"id": "11111111-1111-1111-1111-111111111111",
		"data": {"entity_type": "person", "age": 30}
	}`))
	require.NoError(t, err)

	doc, err := normalizeEntityDoc(payload)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(doc, &got))
	require.Equal(t, "person", got["entity_type"])
	require.Equal(t, "person", got["label"])
	data := got["data"].(map[string]interface{})
	require.Equal(t, "person", data["label"])
	require.Equal(t, float64(30), data["age"])
}

func TestMergeEntityDocShallowMergesData(t *testing.T) {
	current := json.RawMessage(`{"label":"person","entity_type":"person","data":{"name":"bob","age":20}}`)
	update := json.RawMessage(`{"data":{"name":"alice"}}`)

	merged, err := mergeEntityDoc(current, update)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(merged, &got))
	data := got["data"].(map[string]interface{})
	require.Equal(t, "alice", data["name"])
	require.Equal(t, float64(20), data["age"], "untouched keys survive the shallow merge")
	require.Equal(t, "person", got["label"])
}

func TestMergeEntityDocSkipsIDKey(t *testing.T) {
	current := json.RawMessage(`{"label":"x","data":{}}`)
	update := json.RawMessage(`{"id":"should-be-ignored","label":"y"}`)

	merged, err := mergeEntityDoc(current, update)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(merged, &got))
	require.Equal(t, "y", got["label"])
	_, hasID := got["id"]
	require.False(t, hasID)
}
