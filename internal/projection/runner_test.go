package projection_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/graphstore"
	"github.com/steveyegge/graphd/internal/projection"
	"github.com/steveyegge/graphd/internal/storage/postgres"
)

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("graphd_test"),
		tcpostgres.WithUsername("graphd"),
		tcpostgres.WithPassword("graphd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(context.Background())) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, postgres.Migrate(store.DB()))
	return store
}

// runOnce drives exactly one non-empty batch of the runner's loop by
// canceling the context as soon as the checkpoint advances, avoiding a
// dependency on the idle-sleep timing in tests.
func runOnce(t *testing.T, r *projection.Runner, db *sql.DB, name string, wantSeq int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var seq int64
		err := db.QueryRow(`SELECT last_seq FROM event_checkpoints WHERE projection_name = $1`, name).Scan(&seq)
		if err == nil && seq >= wantSeq {
			cancel()
			<-done
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("projection %q did not reach checkpoint %d in time", name, wantSeq)
}

func TestLinearCreateUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	log := eventlog.New(store)
	gs := graphstore.New(store)
	runner := projection.NewGraphMaterializer(store, log, gs, nil)
	ctx := context.Background()

	entityID := "11111111-1111-1111-1111-111111111111"
	graphID := "22222222-2222-2222-2222-222222222222"

	ev1, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: graphID, EventType: "create",
		Payload: json.RawMessage(`{"id":"` + entityID + `","label":"person","data":{}}`),
	})
	require.NoError(t, err)
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev1.Seq)

	entities, err := gs.CurrentEntities(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, entities, 1)

	ev2, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: graphID, EventType: "update",
		Payload: json.RawMessage(`{"id":"` + entityID + `","data":{"name":"alice"}}`),
	})
	require.NoError(t, err)
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev2.Seq)

	entities, err = gs.CurrentEntities(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(entities[0].Doc, &doc))
	require.Equal(t, "person", doc["label"])
	require.Equal(t, "alice", doc["data"].(map[string]interface{})["name"])

	ev3, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: graphID, EventType: "delete",
		Payload: json.RawMessage(`{"id":"` + entityID + `"}`),
	})
	require.NoError(t, err)
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev3.Seq)

	entities, err = gs.CurrentEntities(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, entities, 0)
}

func TestDeleteCascadesToEdges(t *testing.T) {
	store := newTestStore(t)
	log := eventlog.New(store)
	gs := graphstore.New(store)
	runner := projection.NewGraphMaterializer(store, log, gs, nil)
	ctx := context.Background()

	graphID := "33333333-3333-3333-3333-333333333333"
	a := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	b := "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	e := "eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee"

	var lastSeq int64
	for _, payload := range []string{
		`{"id":"` + a + `","label":"person","data":{}}`,
		`{"id":"` + b + `","label":"person","data":{}}`,
	} {
		ev, err := log.Append(ctx, eventlog.AppendRequest{
			Category: "entity", Key: graphID, EventType: "create", Payload: json.RawMessage(payload),
		})
		require.NoError(t, err)
		lastSeq = ev.Seq
	}
	ev, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "edge", Key: graphID, EventType: "create",
		Payload: json.RawMessage(`{"id":"` + e + `","source":"` + a + `","target":"` + b + `"}`),
	})
	require.NoError(t, err)
	lastSeq = ev.Seq
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, lastSeq)

	edges, err := gs.CurrentEdges(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, edges, 1)

	ev, err = log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: graphID, EventType: "delete",
		Payload: json.RawMessage(`{"id":"` + a + `"}`),
	})
	require.NoError(t, err)
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev.Seq)

	edges, err = gs.CurrentEdges(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, edges, 0, "deleting an endpoint must close its incident edges")
}

func TestProjectorReplayEquivalence(t *testing.T) {
	store := newTestStore(t)
	log := eventlog.New(store)
	gs := graphstore.New(store)
	runner := projection.NewGraphMaterializer(store, log, gs, nil)
	ctx := context.Background()

	graphID := "44444444-4444-4444-4444-444444444444"
	entityID := "55555555-5555-5555-5555-555555555555"

	ev1, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: graphID, EventType: "create",
		Payload: json.RawMessage(`{"id":"` + entityID + `","label":"thing","data":{"n":1}}`),
	})
	require.NoError(t, err)
	ev2, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: graphID, EventType: "update",
		Payload: json.RawMessage(`{"id":"` + entityID + `","data":{"n":2}}`),
	})
	require.NoError(t, err)
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev2.Seq)

	before, err := gs.CurrentEntities(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, before, 1)

	_, err = store.DB().Exec(`TRUNCATE entities_current, edges_current`)
	require.NoError(t, err)
	_, err = store.DB().Exec(`DELETE FROM event_checkpoints WHERE projection_name = $1`, projection.GraphMaterializer)
	require.NoError(t, err)

	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev1.Seq)
	runOnce(t, runner, store.DB(), projection.GraphMaterializer, ev2.Seq)

	after, err := gs.CurrentEntities(ctx, uuid.MustParse(graphID))
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.JSONEq(t, string(before[0].Doc), string(after[0].Doc))
}

