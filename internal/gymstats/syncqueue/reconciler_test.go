package syncqueue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/alerts"
	"github.com/2beens/gymsync/internal/gymstats/kvstore"
	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/telemetry/metrics"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	queue      *syncqueue.Queue
	replayer   *Mockreplayer
	alerts     *alerts.Recorder
	metrics    *metrics.Manager
	reconciler *syncqueue.Reconciler
	now        time.Time
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	q, err := syncqueue.NewQueue(context.Background(), kvstore.NewMemory(), "owner")
	require.NoError(t, err)

	f := &reconcilerFixture{
		queue:    q,
		replayer: NewMockreplayer(ctrl),
		alerts:   alerts.NewRecorder(nil, 0),
		metrics:  metrics.NewTestManager(),
		now:      time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.reconciler = syncqueue.NewReconciler(syncqueue.ReconcilerParams{
		Queue:          q,
		Replayer:       f.replayer,
		Alerter:        f.alerts,
		MetricsManager: f.metrics,
		Interval:       10 * time.Millisecond,
		MaxPendingAge:  time.Hour,
		Now:            func() time.Time { return f.now },
	})
	return f
}

func (f *reconcilerFixture) enqueue(t *testing.T, op workouts.OpType, entityID string) syncqueue.Entry {
	t.Helper()
	e, err := f.queue.Append(context.Background(), syncqueue.Entry{
		Type:        op,
		AggregateID: "w1",
		EntityID:    entityID,
		EnqueuedAt:  f.now,
	})
	require.NoError(t, err)
	return e
}

func timeoutErr() error {
	return fmt.Errorf("push: %w", context.DeadlineExceeded)
}

func TestReconciler_EmptyQueue(t *testing.T) {
	f := newReconcilerFixture(t)
	assert.Equal(t, syncqueue.TickEmpty, f.reconciler.Tick(context.Background()))
}

// three network timeouts, then success on the fourth tick
func TestReconciler_TransientFailuresThenSuccess(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	entry := f.enqueue(t, workouts.OpAdd, "w1")

	entryMatcher := gomock.AssignableToTypeOf(syncqueue.Entry{})
	gomock.InOrder(
		f.replayer.EXPECT().Replay(gomock.Any(), entryMatcher).Return(timeoutErr()).Times(3),
		f.replayer.EXPECT().Replay(gomock.Any(), entryMatcher).Return(nil),
	)

	for i := 1; i <= 3; i++ {
		assert.Equal(t, syncqueue.TickRetry, f.reconciler.Tick(ctx))
		head, ok := f.queue.Head()
		require.True(t, ok)
		assert.Equal(t, entry.ID, head.ID)
		assert.Equal(t, i, head.Attempts)
	}

	assert.Equal(t, syncqueue.TickSynced, f.reconciler.Tick(ctx))
	assert.Zero(t, f.queue.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.GaugePendingQueueLen))
	assert.Empty(t, f.alerts.Alerts())
}

func TestReconciler_PermanentFailureDiscards(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.enqueue(t, workouts.OpEdit, "w1")
	second := f.enqueue(t, workouts.OpEdit, "w1")

	f.replayer.EXPECT().
		Replay(gomock.Any(), gomock.Any()).
		Return(remote.NewPermanentError(errors.New("schema mismatch")))

	assert.Equal(t, syncqueue.TickDiscarded, f.reconciler.Tick(ctx))
	head, ok := f.queue.Head()
	require.True(t, ok)
	assert.Equal(t, second.ID, head.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CounterDiscardedEntries))

	visible := f.alerts.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, alerts.KindDiscarded, visible[0].Kind)
}

func TestReconciler_HeadOfLineBlocking(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	first := f.enqueue(t, workouts.OpAdd, "a")
	f.enqueue(t, workouts.OpAdd, "b")

	// only the head is ever replayed, no matter how often it fails
	f.replayer.EXPECT().
		Replay(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e syncqueue.Entry) error {
			assert.Equal(t, first.ID, e.ID)
			return timeoutErr()
		}).
		Times(5)

	for i := 0; i < 5; i++ {
		assert.Equal(t, syncqueue.TickRetry, f.reconciler.Tick(ctx))
	}
	assert.Equal(t, 2, f.queue.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.GaugePendingQueueLen))
}

func TestReconciler_ReplaysInOrder(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	var want []string
	for _, id := range []string{"a", "b", "c"} {
		want = append(want, f.enqueue(t, workouts.OpAdd, id).EntityID)
	}

	var got []string
	f.replayer.EXPECT().
		Replay(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e syncqueue.Entry) error {
			got = append(got, e.EntityID)
			return nil
		}).
		Times(3)

	for range want {
		assert.Equal(t, syncqueue.TickSynced, f.reconciler.Tick(ctx))
	}
	assert.Equal(t, want, got)
}

func TestReconciler_StaleQueueAlertOncePerHead(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.enqueue(t, workouts.OpAdd, "a")
	f.now = f.now.Add(2 * time.Hour)

	f.replayer.EXPECT().Replay(gomock.Any(), gomock.Any()).Return(timeoutErr()).Times(2)

	f.reconciler.Tick(ctx)
	f.reconciler.Tick(ctx)

	visible := f.alerts.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, alerts.KindStaleQueue, visible[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GaugeStaleQueueRaised))
	assert.InDelta(t, (2 * time.Hour).Seconds(), testutil.ToFloat64(f.metrics.GaugePendingHeadAge), 0.001)

	// stale entries are never dropped
	assert.Equal(t, 1, f.queue.Len())
}

func TestReconciler_SingleFlight(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()
	f.enqueue(t, workouts.OpAdd, "a")

	entered := make(chan struct{})
	release := make(chan struct{})
	f.replayer.EXPECT().
		Replay(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, syncqueue.Entry) error {
			close(entered)
			<-release
			return nil
		})

	done := make(chan syncqueue.TickResult)
	go func() {
		done <- f.reconciler.Tick(ctx)
	}()

	<-entered
	assert.Equal(t, syncqueue.TickSkipped, f.reconciler.Tick(ctx))
	close(release)
	assert.Equal(t, syncqueue.TickSynced, <-done)
}

func TestReconciler_Run(t *testing.T) {
	f := newReconcilerFixture(t)
	f.enqueue(t, workouts.OpAdd, "a")

	synced := make(chan struct{})
	f.replayer.EXPECT().
		Replay(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, syncqueue.Entry) error {
			close(synced)
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.reconciler.Run(ctx)
		close(stopped)
	}()

	select {
	case <-synced:
	case <-time.After(2 * time.Second):
		t.Fatal("queue not drained")
	}
	cancel()
	<-stopped
	assert.Zero(t, f.queue.Len())
}
