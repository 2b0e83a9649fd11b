package migrations

import (
	"database/sql"
	"fmt"
)

func init() {
	register(8, "workspaces", MigrateWorkspaces)
}

// MigrateWorkspaces backs the organization/workspace listing glue
// (SPEC_FULL.md §3, "GET /organizations/{id}/workspaces"): a thin local
// stand-in for a table that in a real deployment is owned and written by
// the external identity/org system (spec.md §1 names org/auth as an
// external collaborator). graphd only ever reads it.
func MigrateWorkspaces(db *sql.DB) error {
	exists, err := tableExists(db, "workspaces")
	if err != nil {
		return fmt.Errorf("check workspaces: %w", err)
	}
	if exists {
		return nil
	}

	_, err = db.Exec(`
		CREATE TABLE workspaces (
			workspace_id UUID PRIMARY KEY,
			org_id       UUID NOT NULL,
			name         TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create workspaces: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX workspaces_org_id_idx ON workspaces (org_id)`); err != nil {
		return fmt.Errorf("create workspaces_org_id_idx: %w", err)
	}
	return nil
}
