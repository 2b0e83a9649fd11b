package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// workspaceSummary is one row of GET /organizations/{id}/workspaces
// (SPEC_FULL.md §3, "Organization/workspace listing glue").
type workspaceSummary struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// handleListWorkspaces reads the workspaces table for an org. This is a
// read-only stub against a table a real deployment's external identity/
// org system owns and writes; graphd never mutates it.
func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
	if err != nil {
		writeUnprocessable(w, "org_id must be a uuid")
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT workspace_id, name, created_at
		FROM workspaces
		WHERE org_id = $1
		ORDER BY created_at
	`, orgID)
	if err != nil {
		writeUnprocessable(w, "list workspaces: "+err.Error())
		return
	}
	defer rows.Close()

	out := []workspaceSummary{}
	for rows.Next() {
		var ws workspaceSummary
		if err := rows.Scan(&ws.WorkspaceID, &ws.Name, &ws.CreatedAt); err != nil {
			writeUnprocessable(w, "list workspaces: "+err.Error())
			return
		}
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		writeUnprocessable(w, "list workspaces: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}
