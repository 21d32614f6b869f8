package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryService_CreateIsUpsert(t *testing.T) {
	ctx := context.Background()
	svc := remote.NewMemoryService()
	c := svc.Collection("things")

	now := time.Now()
	doc := remote.Document{ID: "a", OwnerID: "o", Data: []byte(`{"v":1}`), UpdatedAt: now}
	require.NoError(t, c.Create(ctx, doc))
	require.NoError(t, c.Create(ctx, doc))
	assert.Len(t, svc.Documents("things"), 1)

	// older write is ignored
	older := remote.Document{ID: "a", OwnerID: "o", Data: []byte(`{"v":0}`), UpdatedAt: now.Add(-time.Second)}
	require.NoError(t, c.Update(ctx, older))
	stored, ok := svc.Document("things", "a")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(stored.Data))

	assert.ErrorIs(t, c.Create(ctx, remote.Document{}), remote.ErrInvalidDocument)
}

func TestMemoryService_UpdateDeleteMissing(t *testing.T) {
	ctx := context.Background()
	c := remote.NewMemoryService().Collection("things")

	assert.ErrorIs(t, c.Update(ctx, remote.Document{ID: "nope"}), remote.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "nope"), remote.ErrNotFound)
}

func TestMemoryService_ListByOwner(t *testing.T) {
	ctx := context.Background()
	svc := remote.NewMemoryService()
	c := svc.Collection("things")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Create(ctx, remote.Document{ID: "b", OwnerID: "o1", UpdatedAt: base.Add(time.Hour)}))
	require.NoError(t, c.Create(ctx, remote.Document{ID: "a", OwnerID: "o1", UpdatedAt: base}))
	require.NoError(t, c.Create(ctx, remote.Document{ID: "c", OwnerID: "o2", UpdatedAt: base}))

	docs, err := c.ListByOwner(ctx, "o1", remote.Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)

	docs, err = c.ListByOwner(ctx, "o1", remote.Filter{UpdatedSince: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b", docs[0].ID)

	docs, err = c.ListByOwner(ctx, "o1", remote.Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemoryService_Fault(t *testing.T) {
	ctx := context.Background()
	svc := remote.NewMemoryService()
	c := svc.Collection("things")

	boom := errors.New("boom")
	svc.SetFault(func(call remote.Call) error {
		if call.Op == remote.OpCreate {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, c.Create(ctx, remote.Document{ID: "a"}), boom)
	assert.Empty(t, svc.Documents("things"))

	svc.SetFault(nil)
	require.NoError(t, c.Create(ctx, remote.Document{ID: "a"}))

	calls := svc.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, remote.Call{Collection: "things", Op: remote.OpCreate, ID: "a"}, calls[1])
}

func TestMemoryService_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := remote.NewMemoryService().Collection("x").Create(ctx, remote.Document{ID: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, remote.IsPermanent(err))
}
