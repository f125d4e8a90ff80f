package dlq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAndCount(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1", MessageType: "Deposited", Reason: "handler panic"}))
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m2", MessageType: "Withdrawn", Reason: "retry exhausted"}))

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDequeueAllDrainsAndClears(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1"}))

	drained, err := q.DequeueAll(ctx)
	require.NoError(t, err)
	assert.Len(t, drained, 1)

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDequeueAllReturnsIndependentCopy(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1"}))

	drained, err := q.DequeueAll(ctx)
	require.NoError(t, err)
	drained[0].MessageID = "mutated"

	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m2"}))
	drained2, err := q.DequeueAll(ctx)
	require.NoError(t, err)
	require.Len(t, drained2, 1)
	assert.Equal(t, "m2", drained2[0].MessageID)
}

func TestGetByMessageIDFiltersExactMatch(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1", Reason: "a"}))
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m2", Reason: "b"}))
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1", Reason: "c"}))

	matches := q.GetByMessageID(ctx, "m1")
	assert.Len(t, matches, 2)
}

func TestGetByReasonFiltersExactMatch(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1", Reason: "retry exhausted"}))
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m2", Reason: "handler panic"}))

	matches := q.GetByReason(ctx, "retry exhausted")
	require.Len(t, matches, 1)
	assert.Equal(t, "m1", matches[0].MessageID)
}

func TestClearDiscardsWithoutReturning(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1"}))
	require.NoError(t, q.Clear(ctx))

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEnqueueStampsDeadLetteredAtWhenUnset(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, DeadLetteredMessage{MessageID: "m1"}))

	drained, err := q.DequeueAll(ctx)
	require.NoError(t, err)
	require.Len(t, drained, 1)
	assert.False(t, drained[0].DeadLetteredAt.IsZero())
}
