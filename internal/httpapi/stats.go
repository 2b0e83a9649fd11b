package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// handleGraphStats implements the peripheral stats endpoint
// (SPEC_FULL.md §3), backed by graphstore.Store.Stats.
func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	graphID, err := uuid.Parse(chi.URLParam(r, "graph_id"))
	if err != nil {
		writeUnprocessable(w, "graph_id is not a valid uuid")
		return
	}

	stats, err := s.store.Stats(r.Context(), graphID)
	if err != nil {
		writeUnprocessable(w, "failed to load stats: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
