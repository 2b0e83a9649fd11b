package eventlog_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/graphd/internal/eventlog"
	"github.com/steveyegge/graphd/internal/storage/postgres"
)

func TestAppendAssignsContiguousVersions(t *testing.T) {
	store := newTestStore(t)
	t.Cleanup(func() { truncateAll(t, store.DB()) })
	log := eventlog.New(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ev, err := log.Append(ctx, eventlog.AppendRequest{
			Category:  "entity",
			Key:       "workspace-1",
			EventType: "create",
			Payload:   json.RawMessage(`{"id":"1"}`),
		})
		require.NoError(t, err)
		require.EqualValues(t, i+1, ev.Version)
	}
}

func TestAppendOptimisticConflict(t *testing.T) {
	store := newTestStore(t)
	t.Cleanup(func() { truncateAll(t, store.DB()) })
	log := eventlog.New(store)
	ctx := context.Background()

	first, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "workspace-2", EventType: "create",
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, first.Version)

	stale := first.Version
	_, err = log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "workspace-2", EventType: "update",
		Payload: json.RawMessage(`{}`), ExpectedVersion: &stale,
	})
	require.NoError(t, err, "expected_version matching the tail should succeed")

	_, err = log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "workspace-2", EventType: "update",
		Payload: json.RawMessage(`{}`), ExpectedVersion: &stale,
	})
	require.ErrorIs(t, err, postgres.ErrOptimisticConflict)
}

func TestAppendIdempotencyKeyIsNoOp(t *testing.T) {
	store := newTestStore(t)
	t.Cleanup(func() { truncateAll(t, store.DB()) })
	log := eventlog.New(store)
	ctx := context.Background()

	key := "k1"
	first, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "workspace-3", EventType: "create",
		Payload: json.RawMessage(`{}`), IdempotencyKey: &key,
	})
	require.NoError(t, err)

	second, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "workspace-3", EventType: "create",
		Payload: json.RawMessage(`{}`), IdempotencyKey: &key,
	})
	require.NoError(t, err)
	require.Equal(t, first.Seq, second.Seq)
	require.Equal(t, first.Version, second.Version)

	events, err := log.EventsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestEventsAfterOrdersBySeqAcrossStreams(t *testing.T) {
	store := newTestStore(t)
	t.Cleanup(func() { truncateAll(t, store.DB()) })
	log := eventlog.New(store)
	ctx := context.Background()

	_, err := log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "a", EventType: "create", Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	_, err = log.Append(ctx, eventlog.AppendRequest{
		Category: "entity", Key: "b", EventType: "create", Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	events, err := log.EventsAfter(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	rest, err := log.EventsAfter(ctx, events[0].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Greater(t, rest[0].Seq, events[0].Seq)
}
