package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/idgen"
	"github.com/steveyegge/graphd/internal/projection"
	"github.com/steveyegge/graphd/internal/session"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newSessionServer wires a bare HTTP server around session.Session the
// way internal/httpapi's handleSessionUpgrade does: upgrade, pull the
// short-id off the URL tail, hand the connection to Session.Serve.
func newSessionServer(t *testing.T, evLog *eventlog.Log, gs *graphstore.Store, auth session.Authenticator) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/graph/", func(w http.ResponseWriter, r *http.Request) {
		shortID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/graph/"), "/ws")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sess := session.New(conn, evLog, gs, auth, session.StaticAux{
			Plugins:    []string{"core"},
			Blueprints: json.RawMessage(`{}`),
		})
		_ = sess.Serve(r.Context(), shortID)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, shortID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/graph/" + shortID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) session.OutFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f session.OutFrame
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func writeFrame(t *testing.T, conn *websocket.Conn, f session.InFrame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestAuthThenCreateReadEntity(t *testing.T) {
	store := newTestStore(t)
	evLog := eventlog.New(store)
	gs := graphstore.New(store)

	graphID := uuid.New()
	stream, err := evLog.EnsureStream(context.Background(), "entity", graphID.String())
	require.NoError(t, err)
	shortID := idgen.EncodeWorkspaceShortID(stream.StreamID)

	srv := newSessionServer(t, evLog, gs, session.StaticAuthenticator{})
	conn := dial(t, srv, shortID)

	writeFrame(t, conn, session.InFrame{Token: "a-token"})
	auth := readFrame(t, conn)
	require.Equal(t, "authenticated", auth.Type)
	require.Equal(t, []string{"core"}, auth.Plugins)

	writeFrame(t, conn, session.InFrame{
		Action:  "create:entity",
		Payload: json.RawMessage(`{"label":"person","x":1,"y":2}`),
	})
	created := readFrame(t, conn)
	require.Equal(t, "created", created.Type)
	require.Equal(t, "create:entity", created.Action)

	var entity map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Entity, &entity))
	require.Equal(t, "person", entity["label"])
	require.NotEmpty(t, entity["id"])

	// The projector has not run in this test; read:graph before it does is
	// expected to still show an empty graph per spec.md §4.E's explicit
	// consistency note.
	writeFrame(t, conn, session.InFrame{Action: "read:graph"})
	read := readFrame(t, conn)
	require.Equal(t, "read", read.Type)
}

func TestUnauthenticatedActionClosesPolicyViolation(t *testing.T) {
	store := newTestStore(t)
	evLog := eventlog.New(store)
	gs := graphstore.New(store)

	graphID := uuid.New()
	stream, err := evLog.EnsureStream(context.Background(), "entity", graphID.String())
	require.NoError(t, err)
	shortID := idgen.EncodeWorkspaceShortID(stream.StreamID)

	srv := newSessionServer(t, evLog, gs, session.StaticAuthenticator{})
	conn := dial(t, srv, shortID)

	writeFrame(t, conn, session.InFrame{Action: "read:graph"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestInvalidShortIDClosesPolicyViolation(t *testing.T) {
	store := newTestStore(t)
	evLog := eventlog.New(store)
	gs := graphstore.New(store)

	srv := newSessionServer(t, evLog, gs, session.StaticAuthenticator{})
	conn := dial(t, srv, "not-a-real-workspace")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestDeleteEntityClosesProjectedEntity(t *testing.T) {
	store := newTestStore(t)
	evLog := eventlog.New(store)
	gs := graphstore.New(store)

	graphID := uuid.New()
	stream, err := evLog.EnsureStream(context.Background(), "entity", graphID.String())
	require.NoError(t, err)
	shortID := idgen.EncodeWorkspaceShortID(stream.StreamID)

	srv := newSessionServer(t, evLog, gs, session.StaticAuthenticator{})
	conn := dial(t, srv, shortID)
	writeFrame(t, conn, session.InFrame{Token: "a-token"})
	readFrame(t, conn)

	writeFrame(t, conn, session.InFrame{
		Action:  "create:entity",
		Payload: json.RawMessage(`{"label":"a"}`),
	})
	created := readFrame(t, conn)
	var a map[string]interface{}
	require.NoError(t, json.Unmarshal(created.Entity, &a))

	writeFrame(t, conn, session.InFrame{
		Action:  "delete:entity",
		Payload: json.RawMessage(`{"entity":{"id":"` + a["id"].(string) + `"}}`),
	})
	deleted := readFrame(t, conn)
	require.Equal(t, "deleted", deleted.Type)

	runner := projection.NewGraphMaterializer(store, evLog, gs, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		<-done
	}

	entities, err := gs.CurrentEntities(context.Background(), graphID)
	require.NoError(t, err)
	require.Empty(t, entities)
}
