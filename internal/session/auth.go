package session

import (
	"context"

	"github.com/google/uuid"
)

// Authenticator validates a credential token and confirms a principal may
// act on a workspace. Implementations live outside this package (graphd
// has no external identity provider wired in this scope); a stub
// implementation suitable for single-tenant/dev use is in authstub.go.
type Authenticator interface {
	// ValidateToken returns the principal id the token resolves to, or an
	// error if the token is invalid or expired.
	ValidateToken(ctx context.Context, token string) (principalID string, err error)

	// OwnsWorkspace reports whether principalID may act on graphID.
	OwnsWorkspace(ctx context.Context, principalID string, graphID uuid.UUID) (bool, error)
}
