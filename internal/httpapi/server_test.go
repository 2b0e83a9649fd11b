package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/httpapi"
	"github.com/steveyegge/graphd/internal/jobqueue"
	"github.com/steveyegge/graphd/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := newTestStore(t)
	evLog := eventlog.New(store)
	gs := graphstore.New(store)
	jobs := jobqueue.New(store, nil)

	s := httpapi.New(evLog, gs, jobs, store, session.StaticAuthenticator{}, session.StaticAux{
		Plugins:    []string{"core"},
		Blueprints: json.RawMessage(`{}`),
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestAppendEventEndpoint(t *testing.T) {
	srv := newTestServer(t)
	graphID := uuid.New()

	body := `{"event_type":"create","payload":{"id":"` + uuid.New().String() + `","label":"x"}}`
	resp, err := http.Post(srv.URL+"/events/entity/"+graphID.String(), "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ev eventlog.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	require.Equal(t, int32(1), ev.Version)
}

func TestAppendEventEndpointRejectsMissingEventType(t *testing.T) {
	srv := newTestServer(t)
	graphID := uuid.New()

	resp, err := http.Post(srv.URL+"/events/entity/"+graphID.String(), "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEnqueueJobEndpoint(t *testing.T) {
	srv := newTestServer(t)

	body := `{"kind":"attachment:index","payload":{"graph_id":"` + uuid.New().String() + `"}}`
	resp, err := http.Post(srv.URL+"/jobs", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var job jobqueue.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	require.Equal(t, jobqueue.StatusEnqueued, job.Status)
	require.Equal(t, 3, job.MaxAttempts)
}

func TestGraphStatsEndpointEmptyGraph(t *testing.T) {
	srv := newTestServer(t)
	graphID := uuid.New()

	resp, err := http.Get(srv.URL + "/graph/" + graphID.String() + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats graphstore.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, int64(0), stats.OpenNodeCount)
}

func TestListWorkspacesEndpoint(t *testing.T) {
	store := newTestStore(t)
	evLog := eventlog.New(store)
	gs := graphstore.New(store)
	jobs := jobqueue.New(store, nil)
	s := httpapi.New(evLog, gs, jobs, store, session.StaticAuthenticator{}, session.StaticAux{
		Plugins:    []string{"core"},
		Blueprints: json.RawMessage(`{}`),
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	orgID := uuid.New()
	wsID := uuid.New()
	_, err := store.DB().Exec(
		`INSERT INTO workspaces (workspace_id, org_id, name) VALUES ($1, $2, $3)`,
		wsID, orgID, "acme-prod",
	)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/organizations/" + orgID.String() + "/workspaces")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var workspaces []struct {
		WorkspaceID uuid.UUID `json:"workspace_id"`
		Name        string    `json:"name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workspaces))
	require.Len(t, workspaces, 1)
	require.Equal(t, wsID, workspaces[0].WorkspaceID)
	require.Equal(t, "acme-prod", workspaces[0].Name)
}

func TestListWorkspacesEndpointRejectsInvalidOrgID(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/organizations/not-a-uuid/workspaces")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
