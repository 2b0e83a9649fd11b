package jobqueue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/steveyegge/graphd/internal/jobqueue"
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

func TestJobLeaseFairness(t *testing.T) {
	store := newTestStore(t)
	q := jobqueue.New(store, nil)
	ctx := context.Background()

	prio10, prio5 := 10, 5
	j1, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", Priority: &prio10})
	require.NoError(t, err)
	j2, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", Priority: &prio5})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // ensure distinct created_at for J3
	j3, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", Priority: &prio5})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "worker-1", 30, 10)
	require.NoError(t, err)
	require.Len(t, leased, 3)
	require.Equal(t, j2.JobID, leased[0].JobID)
	require.Equal(t, j3.JobID, leased[1].JobID)
	require.Equal(t, j1.JobID, leased[2].JobID)
}

func TestLeaseWithMaxZeroReturnsEmpty(t *testing.T) {
	store := newTestStore(t)
	q := jobqueue.New(store, nil)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop"})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "worker-1", 30, 0)
	require.NoError(t, err)
	require.Empty(t, leased)
}

func TestJobLifecycleCompletes(t *testing.T) {
	store := newTestStore(t)
	q := jobqueue.New(store, nil)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "worker-1", 30, 10)
	require.NoError(t, err)
	require.Len(t, leased, 1)
	require.Equal(t, jobqueue.StatusLeased, leased[0].Status)

	require.NoError(t, q.Start(ctx, job.JobID, "worker-1"))
	require.NoError(t, q.Complete(ctx, job.JobID, "worker-1"))

	got, err := q.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, jobqueue.StatusCompleted, got.Status)
}

func TestJobFailTransitionsToDeadAtMaxAttempts(t *testing.T) {
	store := newTestStore(t)
	q := jobqueue.New(store, nil)
	ctx := context.Background()

	maxAttempts := 1
	job, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", MaxAttempts: &maxAttempts})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "worker-1", 30, 10)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	require.NoError(t, q.Start(ctx, job.JobID, "worker-1"))
	require.NoError(t, q.Fail(ctx, job.JobID, "worker-1", 1))

	got, err := q.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, jobqueue.StatusDead, got.Status)
}

func TestJobFailRetriesUntilMaxAttempts(t *testing.T) {
	store := newTestStore(t)
	q := jobqueue.New(store, nil)
	ctx := context.Background()

	maxAttempts := 3
	job, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", MaxAttempts: &maxAttempts})
	require.NoError(t, err)

	leased, err := q.Lease(ctx, "worker-1", 30, 10)
	require.NoError(t, err)
	require.Len(t, leased, 1)
	require.NoError(t, q.Start(ctx, job.JobID, "worker-1"))
	require.NoError(t, q.Fail(ctx, job.JobID, "worker-1", 0))

	got, err := q.Get(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, jobqueue.StatusFailed, got.Status)

	leased, err = q.Lease(ctx, "worker-1", 30, 10)
	require.NoError(t, err)
	require.Len(t, leased, 1, "a failed job with backoff already elapsed must be leasable again")
}

func TestEnqueueIdempotencyKeyIsNoOp(t *testing.T) {
	store := newTestStore(t)
	q := jobqueue.New(store, nil)
	ctx := context.Background()

	key := "k1"
	first, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", IdempotencyKey: &key})
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, jobqueue.EnqueueRequest{Kind: "noop", IdempotencyKey: &key})
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
}
