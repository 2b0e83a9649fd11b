package config

import (
	"context"
	"fmt"

	"github.com/steveyegge/graphd/internal/storage/postgres"
)

// Context is the process-wide set of resolved dependencies, built once at
// startup and threaded explicitly into every handler and background task
// constructor rather than reached via package-level globals (spec.md §9's
// "process context" design note, generalizing the teacher's own mix of a
// global config blob, storage pool, and token blacklist cache into one
// explicit value). The short-id encoder named in that note has no
// instance state of its own — internal/idgen exposes it as stateless
// functions — so it has no field here.
type Context struct {
	Config    Config
	Store     *postgres.Store
	Blacklist *TokenBlacklist
}

// NewContext loads config from configPath (toml; may be empty) and opens
// the storage pool it names, returning a Context ready to construct every
// other component from.
func NewContext(ctx context.Context, configPath string) (*Context, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("config: open storage: %w", err)
	}

	return &Context{
		Config:    cfg,
		Store:     store,
		Blacklist: NewTokenBlacklist(cfg.TokenBlacklistTTL),
	}, nil
}

// Close releases the Context's owned resources.
func (c *Context) Close() error {
	return c.Store.Close()
}
