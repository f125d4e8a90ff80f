package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coreflow/eventcore/pkg/eventstore"
	"github.com/coreflow/eventcore/pkg/message"
)

// newTestClient starts a disposable Postgres container, migrates it,
// and returns a Client whose lifetime is tied to t.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("eventcore_test"),
		postgres.WithUsername("eventcore"),
		postgres.WithPassword("eventcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{DSN: dsn, MaxConns: 5})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestEventStoreAppendAndLoadRoundTrip(t *testing.T) {
	client := newTestClient(t)
	store := NewEventStore(client)
	ctx := context.Background()

	events := []message.Event{
		message.NewEvent("Deposited", "/acct-1", map[string]any{"amount": float64(100)}),
		message.NewEvent("Deposited", "/acct-1", map[string]any{"amount": float64(50)}),
	}

	require.NoError(t, store.Append(ctx, "acct-1", events, nil))

	loaded, err := store.Load(ctx, "acct-1", 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, 0, loaded[0].Version)
	assert.Equal(t, 1, loaded[1].Version)
}

func TestEventStoreRejectsConcurrentAppendAtStaleVersion(t *testing.T) {
	client := newTestClient(t)
	store := NewEventStore(client)
	ctx := context.Background()

	seed := []message.Event{message.NewEvent("Opened", "/acct-2", nil)}
	require.NoError(t, store.Append(ctx, "acct-2", seed, nil))

	stale := -1
	more := []message.Event{message.NewEvent("Deposited", "/acct-2", map[string]any{"amount": float64(10)})}
	err := store.Append(ctx, "acct-2", more, &stale)
	require.Error(t, err)
}

func TestEventStoreLoadMissingStreamReturnsEmpty(t *testing.T) {
	client := newTestClient(t)
	store := NewEventStore(client)

	loaded, err := store.Load(context.Background(), "does-not-exist", 0)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSnapshotStoreSaveAndLoadRoundTrip(t *testing.T) {
	client := newTestClient(t)
	snaps := NewSnapshotStore(client)
	ctx := context.Background()

	snap := eventstore.Snapshot{
		AggregateID: "acct-3",
		Version:     4,
		State:       map[string]any{"balance": float64(150)},
	}
	require.NoError(t, snaps.SaveSnapshot(ctx, snap))

	loaded, ok, err := snaps.LoadSnapshot(ctx, "acct-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, loaded.Version)
	assert.Equal(t, float64(150), loaded.State["balance"])
}

func TestSnapshotStoreSaveOverwritesPriorSnapshot(t *testing.T) {
	client := newTestClient(t)
	snaps := NewSnapshotStore(client)
	ctx := context.Background()

	require.NoError(t, snaps.SaveSnapshot(ctx, eventstore.Snapshot{AggregateID: "acct-4", Version: 1, State: map[string]any{}}))
	require.NoError(t, snaps.SaveSnapshot(ctx, eventstore.Snapshot{AggregateID: "acct-4", Version: 2, State: map[string]any{}}))

	loaded, ok, err := snaps.LoadSnapshot(ctx, "acct-4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, loaded.Version)
}

func TestSnapshotStoreLoadMissingReturnsNotFound(t *testing.T) {
	client := newTestClient(t)
	snaps := NewSnapshotStore(client)

	_, ok, err := snaps.LoadSnapshot(context.Background(), "no-such-aggregate")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientPing(t *testing.T) {
	client := newTestClient(t)
	ok, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
