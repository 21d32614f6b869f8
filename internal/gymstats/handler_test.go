package gymstats_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/2beens/gymsync/internal/gymstats"
	"github.com/2beens/gymsync/internal/gymstats/alerts"
	"github.com/2beens/gymsync/internal/gymstats/analytics"
	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/kvstore"
	"github.com/2beens/gymsync/internal/gymstats/mutations"
	"github.com/2beens/gymsync/internal/gymstats/remote"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testNow = time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type handlerFixture struct {
	router *mux.Router
	engine *mutations.Engine
	remote *remote.MemoryService
	alerts *alerts.Recorder
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	ctx := context.Background()
	local := kvstore.NewMemory()
	queue, err := syncqueue.NewQueue(ctx, local, "owner")
	require.NoError(t, err)

	f := &handlerFixture{
		remote: remote.NewMemoryService(),
		alerts: alerts.NewRecorder(nil, 0),
	}
	defs := definitions.Default()
	f.engine, err = mutations.NewEngine(ctx, mutations.EngineParams{
		OwnerID:        "owner",
		Store:          workouts.NewStore(),
		Definitions:    defs,
		Queue:          queue,
		Strategy:       remote.NewNormalized(f.remote),
		LocalStorage:   local,
		Alerter:        f.alerts,
		MetricsManager: metrics.NewTestManager(),
		RemoteTimeout:  time.Second,
		Location:       time.UTC,
		Now:            func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(f.engine.Wait)

	analyzer := analytics.NewAnalyzer(analytics.AnalyzerParams{
		Source:      f.engine.Store(),
		Definitions: defs,
	})

	f.router = mux.NewRouter()
	gymstats.NewHandler(f.engine, analyzer, f.alerts).SetupRoutes(f.router, nil, nil, 0)
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ptr[T any](v T) *T {
	return &v
}

func TestHandler_Workouts(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "Push"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	push := decode[workouts.Workout](t, rec)
	assert.Equal(t, "Push", push.Name)
	assert.Equal(t, "owner", push.OwnerID)

	rec = f.do(t, "PUT", "/gymstats/workouts/"+push.ID, gymstats.EditRequest{
		Name: ptr("Push Day"),
		Note: ptr("heavy"),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[workouts.Workout](t, rec)
	assert.Equal(t, "Push Day", edited.Name)
	assert.Equal(t, "heavy", edited.Note)

	rec = f.do(t, "GET", "/gymstats/workouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]workouts.Workout](t, rec), 1)

	rec = f.do(t, "PUT", "/gymstats/workouts/"+push.ID, gymstats.EditRequest{Archived: ptr(true)})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, "GET", "/gymstats/workouts", nil)
	assert.Empty(t, decode[[]workouts.Workout](t, rec))
	rec = f.do(t, "GET", "/gymstats/workouts?archived=true", nil)
	assert.Len(t, decode[[]workouts.Workout](t, rec), 1)

	rec = f.do(t, "GET", "/gymstats/workouts/"+push.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agg := decode[workouts.WorkoutAggregate](t, rec)
	assert.Equal(t, push.ID, agg.ID)
	assert.Empty(t, agg.Exercises)

	rec = f.do(t, "DELETE", "/gymstats/workouts/"+push.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, push.ID, decode[gymstats.DeletedResponse](t, rec).DeletedID)

	f.engine.Wait()
	_, ok := f.remote.Document(remote.CollectionWorkouts, push.ID)
	assert.False(t, ok)
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/gymstats/workouts", bytes.NewReader([]byte(`{"name":"Push"}`)))
	req.Header.Set("Content-Type", "text/plain")
	plain := httptest.NewRecorder()
	f.router.ServeHTTP(plain, req)
	assert.Equal(t, http.StatusBadRequest, plain.Code)

	rec = f.do(t, "PUT", "/gymstats/workouts/missing", gymstats.EditRequest{Name: ptr("x")})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "GET", "/gymstats/workouts/missing/exercises", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "POST", "/gymstats/workouts/missing/exercises", gymstats.NameRequest{Name: "Squat"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// deleting what is not there is a no-op
	rec = f.do(t, "DELETE", "/gymstats/workouts/missing", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, f.remote.Calls())
}

func TestHandler_ExercisesAndLogs(t *testing.T) {
	f := newHandlerFixture(t)

	w := decode[workouts.Workout](t, f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "Push"}))
	rec := f.do(t, "POST", "/gymstats/workouts/"+w.ID+"/exercises", gymstats.NameRequest{Name: "Bench Press"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ex := decode[workouts.Exercise](t, rec)

	rec = f.do(t, "PUT", "/gymstats/exercises/"+ex.ID, gymstats.EditRequest{Order: ptr(5)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[workouts.Exercise](t, rec).Order)

	rec = f.do(t, "GET", "/gymstats/workouts/"+w.ID+"/exercises", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]workouts.Exercise](t, rec), 1)

	rec = f.do(t, "POST", "/gymstats/exercises/"+ex.ID+"/logs", gymstats.SetRequest{Date: "2024-03-09", Weight: 100, Reps: 5, RPE: 8})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[workouts.ExerciseLog](t, rec)

	rec = f.do(t, "POST", "/gymstats/exercises/"+ex.ID+"/logs", gymstats.SetRequest{Weight: 90, Reps: 8, RPE: 7})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "2024-03-10", decode[workouts.ExerciseLog](t, rec).Date)

	rec = f.do(t, "POST", "/gymstats/exercises/"+ex.ID+"/logs", gymstats.SetRequest{Weight: 90, Reps: 8, RPE: 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "PUT", "/gymstats/logs/"+first.ID, gymstats.SetRequest{Weight: 105, Reps: 5, RPE: 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	replaced := decode[workouts.ExerciseLog](t, rec)
	assert.Equal(t, "2024-03-09", replaced.Date)

	rec = f.do(t, "GET", "/gymstats/logs?exercise=Bench%20Press&from=2024-03-09&to=2024-03-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]workouts.LogEntry](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, replaced.ID, logs[0].ID)
	assert.Equal(t, "Bench Press", logs[0].ExerciseName)

	rec = f.do(t, "DELETE", "/gymstats/logs/"+replaced.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, "DELETE", "/gymstats/logs/"+replaced.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, "PUT", "/gymstats/logs/"+replaced.ID, gymstats.SetRequest{Weight: 105, Reps: 5, RPE: 9})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, "DELETE", "/gymstats/exercises/"+ex.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, "GET", "/gymstats/logs", nil)
	assert.Empty(t, decode[[]workouts.LogEntry](t, rec))
}

func TestHandler_Definitions(t *testing.T) {
	f := newHandlerFixture(t)

	custom := definitions.Definition{
		Name:          "Sled Push",
		MainMuscle:    "quads",
		FatigueFactor: 0.9,
	}
	rec := f.do(t, "POST", "/gymstats/definitions", custom)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Sled Push", decode[definitions.Definition](t, rec).Name)

	rec = f.do(t, "POST", "/gymstats/definitions", custom)
	assert.Equal(t, http.StatusConflict, rec.Code)

	custom.Name = "Tire Flip"
	custom.FatigueFactor = 3
	rec = f.do(t, "POST", "/gymstats/definitions", custom)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, "GET", "/gymstats/definitions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	defs := decode[[]definitions.Definition](t, rec)
	assert.Len(t, defs, definitions.Default().Len()+1)
}

func TestHandler_Analytics(t *testing.T) {
	f := newHandlerFixture(t)

	w, err := f.engine.AddWorkout("Push")
	require.NoError(t, err)
	ex, err := f.engine.AddExercise(w.ID, "Bench Press")
	require.NoError(t, err)
	for _, date := range []string{"2024-03-08", "2024-03-09", "2024-03-10"} {
		_, err := f.engine.AddLog(ex.ID, date, 100, 5, 8)
		require.NoError(t, err)
	}

	rec := f.do(t, "GET", "/gymstats/fatigue?windows=1,3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[analytics.Summary](t, rec)
	assert.Equal(t, "2024-03-10", summary.Today)
	require.Len(t, summary.Windows, 2)
	assert.Equal(t, 1, summary.Windows[0].Days)
	assert.Positive(t, summary.Windows[1].Percent)
	require.NotEmpty(t, summary.Muscles)
	assert.Equal(t, "chest", summary.Muscles[0].Muscle)

	rec = f.do(t, "GET", "/gymstats/fatigue?today=2024-03-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[analytics.Summary](t, rec).Windows, len(analytics.DefaultWindows))

	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/gymstats/fatigue?windows=1,x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/gymstats/fatigue?windows=0", nil).Code)

	rec = f.do(t, "GET", "/gymstats/fatigue/daily", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]analytics.Point](t, rec), 3)

	rec = f.do(t, "GET", "/gymstats/charts/volume?exercise=Bench%20Press", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	volume := decode[[]analytics.Point](t, rec)
	require.Len(t, volume, 3)
	assert.Equal(t, 500.0, volume[0].Value)

	rec = f.do(t, "GET", "/gymstats/charts/sets?workout="+w.ID+"&smooth=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []analytics.Point{{Label: "2024-03-08 - 2024-03-10", Value: 1}}, decode[[]analytics.Point](t, rec))
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/gymstats/charts/sets?smooth=-1", nil).Code)

	rec = f.do(t, "GET", "/gymstats/charts/onerm?exercise=Bench%20Press&granularity=20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]analytics.Point](t, rec), 1)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/gymstats/charts/onerm?exercise=Bench%20Press&granularity=15", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/gymstats/charts/onerm", nil).Code)

	rec = f.do(t, "GET", "/gymstats/charts/volume?exercise=Nothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestHandler_SyncStatusAndAlerts(t *testing.T) {
	f := newHandlerFixture(t)

	f.remote.SetFault(func(call remote.Call) error {
		if call.Collection == remote.CollectionWorkouts {
			return errors.New("schema validation failed")
		}
		return context.DeadlineExceeded
	})

	rec := f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "Doomed"})
	require.Equal(t, http.StatusCreated, rec.Code)
	f.engine.Wait()

	rec = f.do(t, "GET", "/gymstats/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	visible := decode[[]alerts.Alert](t, rec)
	require.Len(t, visible, 1)
	assert.Equal(t, alerts.KindRolledBack, visible[0].Kind)

	f.remote.SetFault(func(call remote.Call) error {
		return context.DeadlineExceeded
	})
	kept := decode[workouts.Workout](t, f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "Offline"}))
	f.engine.Wait()

	rec = f.do(t, "GET", "/gymstats/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[gymstats.SyncStatusResponse](t, rec)
	assert.Equal(t, "owner", status.OwnerID)
	assert.Equal(t, remote.StrategyNormalized, status.Strategy)
	assert.Equal(t, 1, status.QueueLength)
	assert.Equal(t, 1, status.UnsyncedRecords)
	require.Len(t, status.Entries, 1)
	assert.Equal(t, kept.ID, status.Entries[0].EntityID)
}

type fixedLimiter struct {
	allowed int
	calls   int
}

func (l *fixedLimiter) Allow(_ context.Context, _ string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	l.calls++
	if l.calls > l.allowed {
		return &redis_rate.Result{Limit: limit, Allowed: 0, RetryAfter: time.Minute}, nil
	}
	return &redis_rate.Result{Limit: limit, Allowed: 1, Remaining: l.allowed - l.calls}, nil
}

func TestHandler_MutationsAreRateLimited(t *testing.T) {
	f := newHandlerFixture(t)
	metricsManager := metrics.NewTestManager()
	limiter := &fixedLimiter{allowed: 1}

	router := mux.NewRouter()
	analyzer := analytics.NewAnalyzer(analytics.AnalyzerParams{Source: f.engine.Store()})
	gymstats.NewHandler(f.engine, analyzer, f.alerts).SetupRoutes(router, limiter, metricsManager, 1)
	f.router = router

	assert.Equal(t, http.StatusCreated, f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "A"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, "POST", "/gymstats/workouts", gymstats.NameRequest{Name: "B"}).Code)

	// reads are not limited
	rec := f.do(t, "GET", "/gymstats/workouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]workouts.Workout](t, rec), 1)
	assert.Equal(t, 2, limiter.calls)
}
