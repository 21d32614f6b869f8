package syncqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/alerts"
	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/telemetry/metrics"
	"github.com/2beens/gymsync/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultInterval      = time.Second
	DefaultMaxPendingAge = 24 * time.Hour
)

//go:generate mockgen -source=$GOFILE -destination=reconciler_mocks_test.go -package=syncqueue_test

type replayer interface {
	Replay(ctx context.Context, entry Entry) error
}

type TickResult string

const (
	TickSkipped   TickResult = "skipped"
	TickEmpty     TickResult = "empty"
	TickSynced    TickResult = "synced"
	TickDiscarded TickResult = "discarded"
	TickRetry     TickResult = "retry"
)

type ReconcilerParams struct {
	Queue          *Queue
	Replayer       replayer
	Alerter        alerts.Alerter
	MetricsManager *metrics.Manager
	Interval       time.Duration
	MaxPendingAge  time.Duration
	Now            func() time.Time
}

// Reconciler drains the queue in the background, one head entry per tick.
// A failing head blocks everything behind it, so changes reach the remote in
// the order they were made.
type Reconciler struct {
	queue          *Queue
	replayer       replayer
	alerter        alerts.Alerter
	metricsManager *metrics.Manager
	interval       time.Duration
	maxPendingAge  time.Duration
	now            func() time.Time

	inFlight     atomic.Bool
	wg           sync.WaitGroup
	staleAlerted string
}

func NewReconciler(params ReconcilerParams) *Reconciler {
	r := &Reconciler{
		queue:          params.Queue,
		replayer:       params.Replayer,
		alerter:        params.Alerter,
		metricsManager: params.MetricsManager,
		interval:       params.Interval,
		maxPendingAge:  params.MaxPendingAge,
		now:            params.Now,
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	if r.maxPendingAge <= 0 {
		r.maxPendingAge = DefaultMaxPendingAge
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.alerter == nil {
		r.alerter = alerts.LogAlerter{}
	}
	if r.metricsManager == nil {
		r.metricsManager = metrics.NewTestManager()
	}
	return r
}

// Run ticks until ctx is done, then waits for an in-flight tick to return.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Debugf("reconciler started, interval: %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			log.Debugln("reconciler stopped")
			return
		case <-ticker.C:
			// a tick still waiting on the network must not block the ticker
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.Tick(ctx)
			}()
		}
	}
}

// Tick retries the head of the queue once. Overlapping ticks are skipped.
func (r *Reconciler) Tick(ctx context.Context) TickResult {
	if !r.inFlight.CompareAndSwap(false, true) {
		return TickSkipped
	}
	defer r.inFlight.Store(false)

	head, ok := r.queue.Head()
	if !ok {
		r.updateGauges(Entry{}, false)
		return TickEmpty
	}
	r.updateGauges(head, true)

	result, err := r.replay(ctx, head)
	if err != nil {
		log.Errorf("reconciler: %s", err)
	}
	_, hasNext := r.queue.Head()
	if !hasNext {
		r.updateGauges(Entry{}, false)
	}
	return result
}

func (r *Reconciler) replay(ctx context.Context, head Entry) (_ TickResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "reconciler.replay")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("entry.id", head.ID),
		attribute.String("entry.type", string(head.Type)),
		attribute.String("entity.id", head.EntityID),
		attribute.Int("attempts", head.Attempts),
	)

	replayErr := r.replayer.Replay(ctx, head)
	switch {
	case replayErr == nil:
		if _, err := r.queue.Pop(ctx, head.ID); err != nil {
			return TickSynced, fmt.Errorf("pop synced entry %s: %w", head.ID, err)
		}
		log.Debugf("reconciler: entry %s [%s %s] synced after %d failed attempts", head.ID, head.Type, head.EntityID, head.Attempts+1)
		return TickSynced, nil
	case remote.IsPermanent(replayErr):
		if _, err := r.queue.Pop(ctx, head.ID); err != nil {
			return TickDiscarded, fmt.Errorf("pop discarded entry %s: %w", head.ID, err)
		}
		r.metricsManager.CounterDiscardedEntries.Inc()
		r.alerter.Alert(ctx, alerts.Alert{
			Kind:     alerts.KindDiscarded,
			Op:       string(head.Type),
			EntityID: head.EntityID,
			Message:  fmt.Sprintf("change could not be saved and was dropped: %s", replayErr),
		})
		return TickDiscarded, nil
	default:
		log.Debugf("reconciler: entry %s [%s %s] still failing: %s", head.ID, head.Type, head.EntityID, replayErr)
		if err := r.queue.RecordFailure(ctx, head.ID, replayErr); err != nil {
			return TickRetry, fmt.Errorf("record failure of %s: %w", head.ID, err)
		}
		return TickRetry, nil
	}
}

func (r *Reconciler) updateGauges(head Entry, hasHead bool) {
	r.metricsManager.GaugePendingQueueLen.Set(float64(r.queue.Len()))
	if !hasHead {
		r.metricsManager.GaugePendingHeadAge.Set(0)
		r.metricsManager.GaugeStaleQueueRaised.Set(0)
		return
	}

	age := r.now().Sub(head.EnqueuedAt)
	r.metricsManager.GaugePendingHeadAge.Set(age.Seconds())
	if age <= r.maxPendingAge {
		r.metricsManager.GaugeStaleQueueRaised.Set(0)
		return
	}

	r.metricsManager.GaugeStaleQueueRaised.Set(1)
	// once per head entry; the entry itself is kept
	if r.staleAlerted == head.ID {
		return
	}
	r.staleAlerted = head.ID
	r.alerter.Alert(context.Background(), alerts.Alert{
		Kind:     alerts.KindStaleQueue,
		Op:       string(head.Type),
		EntityID: head.EntityID,
		Message: fmt.Sprintf(
			"%d changes are waiting to be saved, the oldest for %s",
			r.queue.Len(), age.Truncate(time.Second),
		),
	})
}
