package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StaticAuthenticator is a development/single-tenant Authenticator: any
// non-empty token resolves to itself as the principal, and every
// principal owns every workspace. Production deployments supply their
// own Authenticator wired to an identity provider; this stub exists so
// cmd/graphd serve has something to run against out of the box.
type StaticAuthenticator struct{}

func (StaticAuthenticator) ValidateToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

func (StaticAuthenticator) OwnsWorkspace(ctx context.Context, principalID string, graphID uuid.UUID) (bool, error) {
	return true, nil
}
