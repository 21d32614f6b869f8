package syncqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/kvstore"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/gymstats/workouts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingStore struct {
	kvstore.Store
	err error
}

func (s failingStore) Set(context.Context, string, string) error {
	return s.err
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q, err := syncqueue.NewQueue(ctx, kvstore.NewMemory(), "owner")
	require.NoError(t, err)

	var ids []string
	for _, entity := range []string{"a", "b", "c"} {
		e, err := q.Append(ctx, syncqueue.Entry{Type: workouts.OpAdd, AggregateID: "w1", EntityID: entity})
		require.NoError(t, err)
		require.NotEmpty(t, e.ID)
		assert.False(t, e.EnqueuedAt.IsZero())
		ids = append(ids, e.ID)
	}
	assert.Equal(t, 3, q.Len())

	// only the head can be popped
	_, err = q.Pop(ctx, ids[1])
	assert.ErrorIs(t, err, syncqueue.ErrHeadMismatch)

	for i, id := range ids {
		head, ok := q.Head()
		require.True(t, ok)
		assert.Equal(t, id, head.ID, "entry %d out of order", i)
		_, err := q.Pop(ctx, id)
		require.NoError(t, err)
	}
	_, ok := q.Head()
	assert.False(t, ok)
	assert.Zero(t, q.HeadAge())
}

func TestQueue_PersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()

	q, err := syncqueue.NewQueue(ctx, store, "owner")
	require.NoError(t, err)
	first, err := q.Append(ctx, syncqueue.Entry{Type: workouts.OpAdd, AggregateID: "w1", EntityID: "w1", Payload: []byte(`{"op":"add"}`)})
	require.NoError(t, err)
	_, err = q.Append(ctx, syncqueue.Entry{Type: workouts.OpDelete, AggregateID: "w2", EntityID: "w2"})
	require.NoError(t, err)
	require.NoError(t, q.RecordFailure(ctx, first.ID, errors.New("timeout")))

	raw, found, err := store.Get(ctx, syncqueue.Key("owner"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, "timeout")

	reloaded, err := syncqueue.NewQueue(ctx, store, "owner")
	require.NoError(t, err)
	entries := reloaded.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "timeout", entries[0].LastError)
	assert.JSONEq(t, `{"op":"add"}`, string(entries[0].Payload))

	// queues are per owner
	other, err := syncqueue.NewQueue(ctx, store, "someone-else")
	require.NoError(t, err)
	assert.Zero(t, other.Len())
}

func TestQueue_AggregateAndEntityLookups(t *testing.T) {
	ctx := context.Background()
	q, err := syncqueue.NewQueue(ctx, kvstore.NewMemory(), "owner")
	require.NoError(t, err)
	_, err = q.Append(ctx, syncqueue.Entry{Type: workouts.OpAdd, AggregateID: "w1", EntityID: "e1"})
	require.NoError(t, err)

	assert.True(t, q.HasAggregate("w1"))
	assert.False(t, q.HasAggregate("w2"))
	assert.Equal(t, map[string]bool{"e1": true}, q.EntityIDs())
}

func TestQueue_AppendKeepsEntryWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	store := failingStore{Store: kvstore.NewMemory(), err: errors.New("disk full")}
	q, err := syncqueue.NewQueue(ctx, store, "owner")
	require.NoError(t, err)

	_, err = q.Append(ctx, syncqueue.Entry{Type: workouts.OpAdd, EntityID: "x", EnqueuedAt: time.Now()})
	assert.Error(t, err)
	assert.Equal(t, 1, q.Len())
}

func TestNewQueue_CorruptState(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	require.NoError(t, store.Set(ctx, syncqueue.Key("owner"), "{not json"))

	_, err := syncqueue.NewQueue(ctx, store, "owner")
	assert.Error(t, err)
}

func TestQueue_AppendDeduplicatesByKey(t *testing.T) {
	ctx := context.Background()
	q, err := syncqueue.NewQueue(ctx, kvstore.NewMemory(), "owner")
	require.NoError(t, err)

	first, err := q.Append(ctx, syncqueue.Entry{Key: "workout:w1", Type: workouts.OpAdd, AggregateID: "w1", EntityID: "w1"})
	require.NoError(t, err)
	again, err := q.Append(ctx, syncqueue.Entry{Key: "workout:w1", Type: workouts.OpAdd, AggregateID: "w1", EntityID: "w1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, q.Len())

	// entries without a key are always appended
	_, err = q.Append(ctx, syncqueue.Entry{Type: workouts.OpEdit, AggregateID: "w1", EntityID: "w1"})
	require.NoError(t, err)
	_, err = q.Append(ctx, syncqueue.Entry{Type: workouts.OpEdit, AggregateID: "w1", EntityID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Len())
}
