package session

import "github.com/google/uuid"

// state is the session's two-state machine (spec.md §9, "Session state
// machine"): Unauthenticated accepts only a credential-bearing message;
// Authenticated(graph_uuid) accepts action messages. Re-auth is a timer
// event that flips an authenticated session back to requiring a
// credential on its next message, not a message-count counter.
type state int

const (
	stateUnauthenticated state = iota
	stateAuthenticated
)

// authContext holds the state machine's current phase and, once
// authenticated, the resolved workspace.
type authContext struct {
	phase        state
	graphID      uuid.UUID
	principalID  string
	needsReauth  bool
}
