// Package session implements the Session Protocol (spec.md §4.E): a
// stateful, long-lived, single-threaded cooperative websocket channel
// bound to one workspace, with an explicit Unauthenticated/
// Authenticated(graph_uuid) state machine and periodic re-auth on a
// timer, adapted from the teacher's handleWebSocket upgrade-and-loop
// pattern (cmd/bd/monitor.go).
package session

import "encoding/json"

// InFrame is a client->server message. Fields are interpreted according
// to the session's current state: Unauthenticated only reads Token;
// Authenticated reads Action and Payload.
type InFrame struct {
	Token   string          `json:"token,omitempty"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutFrame is a server->client message. Only the fields relevant to Type
// are populated; json marshaling drops the rest via omitempty.
type OutFrame struct {
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Plugins   []string        `json:"plugins,omitempty"`
	Blueprints json.RawMessage `json:"blueprints,omitempty"`
	Nodes     json.RawMessage `json:"nodes,omitempty"`
	Edges     json.RawMessage `json:"edges,omitempty"`
	Entity    json.RawMessage `json:"entity,omitempty"`
	Edge      json.RawMessage `json:"edge,omitempty"`
	Message   string          `json:"message,omitempty"`
}

const (
	frameTypeAuthenticated = "authenticated"
	frameTypeRead          = "read"
	frameTypeCreated       = "created"
	frameTypeUpdated       = "updated"
	frameTypeDeleted       = "deleted"
	frameTypeError         = "error"
)

func errorFrame(message string) OutFrame {
	return OutFrame{Type: frameTypeError, Message: message}
}
