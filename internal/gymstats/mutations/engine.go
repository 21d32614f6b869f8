package mutations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/alerts"
	"github.com/2beens/gymsync/internal/gymstats/datekey"
	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/kvstore"
	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/telemetry/metrics"
	"github.com/2beens/gymsync/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultRemoteTimeout = 10 * time.Second
	storeKeyPrefix       = "gymstats:store:"
)

//go:generate mockgen -source=$GOFILE -destination=engine_mocks_test.go -package=mutations_test

type strategy interface {
	Name() string
	Push(ctx context.Context, change workouts.Change) error
	Pull(ctx context.Context, ownerID string) (workouts.Snapshot, error)
}

type EngineParams struct {
	OwnerID        string
	Store          *workouts.Store
	Definitions    *definitions.Table
	Queue          *syncqueue.Queue
	Strategy       strategy
	LocalStorage   kvstore.Store
	Alerter        alerts.Alerter
	MetricsManager *metrics.Manager
	RemoteTimeout  time.Duration
	Location       *time.Location
	Now            func() time.Time
}

// Engine applies every change to the local store first and then tries to
// persist it remotely in the background. Changes that cannot be persisted
// right away end up in the pending sync queue, which the reconciler drains
// through Replay.
type Engine struct {
	ownerID        string
	store          *workouts.Store
	definitions    *definitions.Table
	queue          *syncqueue.Queue
	strategy       strategy
	localStorage   kvstore.Store
	alerter        alerts.Alerter
	metricsManager *metrics.Manager
	remoteTimeout  time.Duration
	location       *time.Location
	now            func() time.Time

	// held across a local apply and its slot reservation
	applyMu   sync.Mutex
	sequencer *sequencer
	wg        sync.WaitGroup
	persistMu sync.Mutex
}

// NewEngine creates the engine and restores the local store from the last
// persisted snapshot, when there is one.
func NewEngine(ctx context.Context, params EngineParams) (*Engine, error) {
	if params.OwnerID == "" {
		return nil, errors.New("owner id not set")
	}
	if params.Store == nil || params.Queue == nil || params.Strategy == nil || params.LocalStorage == nil {
		return nil, errors.New("store, queue, strategy and local storage are required")
	}

	e := &Engine{
		ownerID:        params.OwnerID,
		store:          params.Store,
		definitions:    params.Definitions,
		queue:          params.Queue,
		strategy:       params.Strategy,
		localStorage:   params.LocalStorage,
		alerter:        params.Alerter,
		metricsManager: params.MetricsManager,
		remoteTimeout:  params.RemoteTimeout,
		location:       params.Location,
		now:            params.Now,
		sequencer:      newSequencer(),
	}
	if e.definitions == nil {
		e.definitions = definitions.Default()
	}
	if e.alerter == nil {
		e.alerter = alerts.LogAlerter{}
	}
	if e.metricsManager == nil {
		e.metricsManager = metrics.NewTestManager()
	}
	if e.remoteTimeout <= 0 {
		e.remoteTimeout = DefaultRemoteTimeout
	}
	if e.location == nil {
		e.location = time.Local
	}
	if e.now == nil {
		e.now = time.Now
	}

	if err := e.restore(ctx); err != nil {
		return nil, err
	}
	e.updateGauges()
	return e, nil
}

func StoreKey(ownerID string) string {
	return storeKeyPrefix + ownerID
}

func (e *Engine) OwnerID() string {
	return e.ownerID
}

func (e *Engine) Store() *workouts.Store {
	return e.store
}

func (e *Engine) Definitions() *definitions.Table {
	return e.definitions
}

func (e *Engine) Queue() *syncqueue.Queue {
	return e.queue
}

func (e *Engine) StrategyName() string {
	return e.strategy.Name()
}

// Today is the date key of the current local day.
func (e *Engine) Today() string {
	return datekey.In(e.now(), e.location)
}

// Wait blocks until every started remote attempt has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Hydrate pulls the owner's records from the remote and merges them into the
// local store. Records with queued changes are left alone. Returns the
// number of merged records.
func (e *Engine) Hydrate(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "engine.hydrate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	pullCtx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()
	snap, err := e.strategy.Pull(pullCtx, e.ownerID)
	if err != nil {
		return 0, fmt.Errorf("pull from remote: %w", remote.Classify(err))
	}

	merged := e.store.Merge(snap, e.queue.EntityIDs())
	span.SetAttributes(attribute.Int("merged", merged))
	if merged > 0 {
		e.persistSnapshot(ctx)
	}
	e.updateGauges()
	log.Debugf("engine: hydrated %d records from %s remote", merged, e.strategy.Name())
	return merged, nil
}

// Replay retries a queued change. It is called by the reconciler, and goes
// through the same per-workout sequencing as live attempts.
func (e *Engine) Replay(ctx context.Context, entry syncqueue.Entry) (err error) {
	change, err := workouts.UnmarshalChange(entry.Payload)
	if err != nil {
		return remote.NewPermanentError(err)
	}

	sl := e.sequencer.reserve(change.AggregateID)
	defer sl.release()
	if err := sl.wait(ctx); err != nil {
		return remote.NewTransientError(err)
	}

	if e.superseded(change) {
		e.metricsManager.CounterRemoteAttempts.WithLabelValues(string(change.Op), metrics.ResultSkipped).Inc()
		log.Debugf("engine: replay of %s skipped, record is gone locally", change)
		return nil
	}

	err = e.push(ctx, change)
	if err == nil || (PolicyFor(change.Op).NotFoundIsSuccess && remote.IsNotFound(err)) {
		e.markSynced(ctx, change)
		return nil
	}
	return err
}

// CompactDeletedLogs purges synced soft deleted logs older than the given
// number of days.
func (e *Engine) CompactDeletedLogs(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", olderThanDays)
	}
	cutoff, err := datekey.AddDays(e.Today(), -olderThanDays)
	if err != nil {
		return 0, err
	}
	purged := e.store.CompactDeletedLogs(cutoff)
	if purged > 0 {
		e.persistSnapshot(ctx)
	}
	return purged, nil
}

// submit runs after the local apply, with applyMu held. It reserves the sequencing slot right
// away, so remote attempts of one workout happen in issue order.
func (e *Engine) submit(change workouts.Change) {
	change.OwnerID = e.ownerID
	if change.IssuedAt.IsZero() {
		change.IssuedAt = e.now()
	}
	if agg, err := e.store.Aggregate(change.AggregateID); err == nil {
		change.Aggregate = &agg
	}

	e.metricsManager.CounterMutations.WithLabelValues(string(change.Op), string(change.Entity)).Inc()
	e.persistSnapshot(context.Background())
	e.updateGauges()

	sl := e.sequencer.reserve(change.AggregateID)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer sl.release()
		// remote attempts are not cancelable, push bounds each call with a timeout
		ctx := context.Background()
		_ = sl.wait(ctx)
		e.attempt(ctx, change)
	}()
}

func (e *Engine) attempt(ctx context.Context, change workouts.Change) {
	if e.superseded(change) {
		e.metricsManager.CounterRemoteAttempts.WithLabelValues(string(change.Op), metrics.ResultSkipped).Inc()
		log.Debugf("engine: %s skipped, record is gone locally", change)
		return
	}

	// never overtake changes of the same workout waiting in the queue
	if e.queue.HasAggregate(change.AggregateID) {
		e.metricsManager.CounterRemoteAttempts.WithLabelValues(string(change.Op), metrics.ResultQueued).Inc()
		e.enqueue(ctx, change)
		return
	}

	err := e.push(ctx, change)
	policy := PolicyFor(change.Op)
	switch {
	case err == nil:
		e.markSynced(ctx, change)
	case policy.NotFoundIsSuccess && remote.IsNotFound(err):
		log.Debugf("engine: %s already gone remotely", change)
		e.markSynced(ctx, change)
	case remote.IsPermanent(err) && policy.QueueOnPermanent:
		log.Warnf("engine: %s rejected by remote, queued for retry: %s", change, err)
		e.enqueue(ctx, change)
	case remote.IsPermanent(err):
		e.handlePermanent(ctx, change, policy, err)
	default:
		log.Warnf("engine: %s failed, queued for retry: %s", change, err)
		e.enqueue(ctx, change)
	}
}

// push sends one change through the storage strategy. The returned error is
// always classified.
func (e *Engine) push(ctx context.Context, change workouts.Change) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "engine.push")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("change", change.Name),
		attribute.String("op", string(change.Op)),
		attribute.String("entity.id", change.EntityID),
		attribute.String("aggregate.id", change.AggregateID),
		attribute.String("strategy", e.strategy.Name()),
	)

	ctx, cancel := context.WithTimeout(ctx, e.remoteTimeout)
	defer cancel()

	start := time.Now()
	err = remote.Classify(e.strategy.Push(ctx, change))
	e.metricsManager.HistRemoteAttemptDuration.WithLabelValues(e.strategy.Name()).Observe(time.Since(start).Seconds())

	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case remote.IsPermanent(err):
		result = metrics.ResultPermanent
	default:
		result = metrics.ResultTransient
	}
	e.metricsManager.CounterRemoteAttempts.WithLabelValues(string(change.Op), result).Inc()
	return err
}

func (e *Engine) handlePermanent(ctx context.Context, change workouts.Change, policy Policy, cause error) {
	if !policy.RollbackOnFailure {
		e.alert(ctx, alerts.Alert{
			Kind:     alerts.KindDiagnostic,
			Op:       string(change.Op),
			EntityID: change.EntityID,
			Message:  fmt.Sprintf("%s rejected by remote, local state kept: %s", change, cause),
		})
		return
	}

	if err := e.rollback(change); err != nil {
		log.Errorf("engine: rollback of %s: %s", change, err)
	}
	e.persistSnapshot(ctx)
	e.updateGauges()
	e.alert(ctx, alerts.Alert{
		Kind:     alerts.KindRolledBack,
		Op:       string(change.Op),
		EntityID: change.EntityID,
		Message:  fmt.Sprintf("%s could not be saved and was undone: %s", change.Name, cause),
	})
}

func (e *Engine) rollback(change workouts.Change) error {
	var err error
	switch change.Entity {
	case workouts.EntityWorkout:
		_, err = e.store.RemoveWorkout(change.EntityID)
	case workouts.EntityExercise:
		_, err = e.store.RemoveExercise(change.EntityID)
	case workouts.EntityLog:
		err = e.store.RemoveLog(change.EntityID)
	default:
		return fmt.Errorf("unknown entity [%s]", change.Entity)
	}
	return err
}

func (e *Engine) enqueue(ctx context.Context, change workouts.Change) {
	payload, err := change.Marshal()
	if err != nil {
		log.Errorf("engine: cannot queue %s: %s", change, err)
		return
	}

	entry, err := e.queue.Append(ctx, syncqueue.Entry{
		Key:         PolicyFor(change.Op).IdempotencyKey(change),
		Type:        change.Op,
		AggregateID: change.AggregateID,
		EntityID:    change.EntityID,
		Payload:     payload,
	})
	if err != nil {
		// still queued in memory, lost only if the process dies first
		log.Errorf("engine: queued %s as %s: %s", change, entry.ID, err)
	}
	e.metricsManager.GaugePendingQueueLen.Set(float64(e.queue.Len()))
}

func (e *Engine) markSynced(ctx context.Context, change workouts.Change) {
	if len(change.Touched) == 0 {
		return
	}
	if e.store.MarkSynced(change.Touched...) > 0 {
		e.persistSnapshot(ctx)
	}
	e.updateGauges()
}

// superseded reports whether a later local change already removed the record
// this change is about. Deletes are never superseded.
func (e *Engine) superseded(change workouts.Change) bool {
	if change.Op == workouts.OpDelete {
		return false
	}
	var err error
	switch change.Entity {
	case workouts.EntityWorkout:
		_, err = e.store.Workout(change.EntityID)
	case workouts.EntityExercise:
		_, err = e.store.Exercise(change.EntityID)
	case workouts.EntityLog:
		_, err = e.store.Log(change.EntityID)
	}
	return err != nil
}

func (e *Engine) alert(ctx context.Context, a alerts.Alert) {
	e.metricsManager.CounterAlerts.WithLabelValues(string(a.Kind)).Inc()
	e.alerter.Alert(ctx, a)
}

func (e *Engine) updateGauges() {
	e.metricsManager.GaugeUnsyncedRecords.Set(float64(e.store.PendingCount()))
	e.metricsManager.GaugePendingQueueLen.Set(float64(e.queue.Len()))
}

func (e *Engine) persistSnapshot(ctx context.Context) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	raw, err := json.Marshal(e.store.Snapshot())
	if err != nil {
		log.Errorf("engine: encode store snapshot: %s", err)
		return
	}
	if err := e.localStorage.Set(ctx, StoreKey(e.ownerID), string(raw)); err != nil {
		log.Errorf("engine: persist store snapshot: %s", err)
	}
}

func (e *Engine) restore(ctx context.Context) error {
	raw, found, err := e.localStorage.Get(ctx, StoreKey(e.ownerID))
	if err != nil {
		return fmt.Errorf("load store snapshot: %w", err)
	}
	if !found || raw == "" {
		return nil
	}

	var snap workouts.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return fmt.Errorf("decode store snapshot: %w", err)
	}
	e.store.Restore(snap)
	log.Debugf(
		"engine: restored %d workouts, %d exercises, %d logs from local storage",
		len(snap.Workouts), len(snap.Exercises), len(snap.Logs),
	)
	return nil
}
