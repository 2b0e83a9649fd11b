// Package httpapi wires the Event append, Job enqueue, Session upgrade,
// and graph stats endpoints from spec.md §6 onto a chi router, grounded
// on the teacher's handler shape (cmd/bd/monitor.go) but routed through
// chi instead of the bare net/http mux the teacher uses, since this
// package needs path parameters (`{category}`, `{key}`, `{workspace_short_id}`)
// that net/http's ServeMux only gained basic support for after the
// teacher was written.
package httpapi

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/jobqueue"
	"github.com/steveyegge/graphd/internal/session"
	"github.com/steveyegge/graphd/internal/storage/postgres"
)

// Server holds the handles every endpoint needs.
type Server struct {
	log   *eventlog.Log
	store *graphstore.Store
	jobs  *jobqueue.Queue
	auth  session.Authenticator
	aux   session.StaticAux
	db    *sql.DB // workspaces glue table only (orgs.go); every other handler goes through log/store/jobs
}

// New constructs the Server. auth may be session.StaticAuthenticator{} for
// single-tenant/dev deployments.
func New(evLog *eventlog.Log, gs *graphstore.Store, jobs *jobqueue.Queue, pgStore *postgres.Store, auth session.Authenticator, aux session.StaticAux) *Server {
	return &Server{log: evLog, store: gs, jobs: jobs, db: pgStore.DB(), auth: auth, aux: aux}
}

// Router builds the full chi.Mux per spec.md §6's endpoint table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Post("/events/{category}/{key}", s.handleAppendEvent)
	r.Post("/jobs", s.handleEnqueueJob)
	r.Get("/graph/{workspace_short_id}/ws", s.handleSessionUpgrade)
	r.Get("/graph/{graph_id}/stats", s.handleGraphStats)
	r.Get("/organizations/{org_id}/workspaces", s.handleListWorkspaces)

	return r
}

// requestLogger logs one line per request at the teacher's preferred
// field-style log density (internal/eventbus and cmd/bd both favor short
// structured lines over verbose per-request dumps).
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Debug("http request")
		next.ServeHTTP(w, r)
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}
