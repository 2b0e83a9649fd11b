package eventlog_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/steveyegge/graphd/internal/storage/postgres"
)

// newTestStore spins up a disposable Postgres container, runs every
// migration, and returns a *postgres.Store torn down at test end. Used by
// the eventlog package tests; the projection, jobqueue, httpapi and
// session packages each carry their own copy. Each exercises the real
// skip-locked/serializable behavior Postgres provides and SQLite cannot.
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
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, postgres.Migrate(store.DB()))
	return store
}

func truncateAll(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE events, event_streams, event_checkpoints,
		entities_current, edges_current, jobs RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}
