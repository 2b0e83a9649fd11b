package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/steveyegge/graphd/internal/session"
)

// handleSessionUpgrade implements GET /graph/{workspace_short_id}/ws
// (spec.md §6): upgrade to a duplex text-frame channel and hand it to a
// fresh session.Session for the connection's lifetime.
func (s *Server) handleSessionUpgrade(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "workspace_short_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	sess := session.New(conn, s.log, s.store, s.auth, s.aux)
	if err := sess.Serve(r.Context(), shortID); err != nil {
		log.WithError(err).WithField("workspace_short_id", shortID).Debug("session ended")
	}
}
