package gymstats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/alerts"
	"github.com/2beens/gymsync/internal/gymstats/analytics"
	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/middleware"
	"github.com/2beens/gymsync/internal/telemetry/metrics"
	"github.com/2beens/gymsync/internal/telemetry/tracing"
	"github.com/2beens/gymsync/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type mutationEngine interface {
	Store() *workouts.Store
	Definitions() *definitions.Table
	Queue() *syncqueue.Queue
	StrategyName() string
	OwnerID() string
	Today() string

	AddWorkout(name string) (workouts.Workout, error)
	RenameWorkout(id, name string) (workouts.Workout, error)
	SetWorkoutNote(id, note string) (workouts.Workout, error)
	ArchiveWorkout(id string, archived bool) (workouts.Workout, error)
	ReorderWorkout(id string, order int) (workouts.Workout, error)
	DeleteWorkout(id string) error

	AddExercise(workoutID, name string) (workouts.Exercise, error)
	RenameExercise(id, name string) (workouts.Exercise, error)
	SetExerciseNote(id, note string) (workouts.Exercise, error)
	ArchiveExercise(id string, archived bool) (workouts.Exercise, error)
	ReorderExercise(id string, order int) (workouts.Exercise, error)
	DeleteExercise(id string) error
	DefineExercise(def definitions.Definition) error

	AddLog(exerciseID, date string, weight float64, reps int, rpe float64) (workouts.ExerciseLog, error)
	ReplaceLog(id string, weight float64, reps int, rpe float64) (workouts.ExerciseLog, error)
	DeleteLog(id string) error
}

type statsAnalyzer interface {
	Summary(ctx context.Context, today string, windows ...int) (*analytics.Summary, error)
	DailyFatigue(ctx context.Context) ([]analytics.Point, error)
	Volume(ctx context.Context, filter analytics.ChartFilter) ([]analytics.Point, error)
	Sets(ctx context.Context, filter analytics.ChartFilter) ([]analytics.Point, error)
	OneRM(ctx context.Context, exerciseName string, granularity analytics.Granularity) ([]analytics.Point, error)
}

type alertsSource interface {
	Alerts() []alerts.Alert
	Visible() []alerts.Alert
}

type NameRequest struct {
	Name string `json:"name"`
}

// EditRequest carries the fields of a workout or exercise to change. Fields
// left out are not touched.
type EditRequest struct {
	Name     *string `json:"name,omitempty"`
	Note     *string `json:"note,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
	Order    *int    `json:"order,omitempty"`
}

type SetRequest struct {
	Date   string  `json:"date"`
	Weight float64 `json:"weight"`
	Reps   int     `json:"reps"`
	RPE    float64 `json:"rpe"`
}

type DeletedResponse struct {
	DeletedID string `json:"deletedId"`
}

type SyncStatusResponse struct {
	OwnerID         string            `json:"ownerId"`
	Strategy        string            `json:"strategy"`
	QueueLength     int               `json:"queueLength"`
	HeadAgeSeconds  float64           `json:"headAgeSeconds"`
	UnsyncedRecords int               `json:"unsyncedRecords"`
	Entries         []syncqueue.Entry `json:"entries"`
}

type Handler struct {
	engine   mutationEngine
	analyzer statsAnalyzer
	alerts   alertsSource
}

func NewHandler(engine mutationEngine, analyzer statsAnalyzer, alertsSource alertsSource) *Handler {
	return &Handler{
		engine:   engine,
		analyzer: analyzer,
		alerts:   alertsSource,
	}
}

// SetupRoutes registers the presentation API under /gymstats. Writes are
// rate limited when a limiter is given.
func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	rateLimiter middleware.RequestRateLimiter,
	metricsManager *metrics.Manager,
	allowedPerMin int,
) {
	r := mainRouter.PathPrefix("/gymstats").Subrouter()
	r.HandleFunc("/workouts", handler.HandleListWorkouts).Methods("GET", "OPTIONS").Name("list-workouts")
	r.HandleFunc("/workouts/{id}", handler.HandleGetWorkout).Methods("GET", "OPTIONS").Name("get-workout")
	r.HandleFunc("/workouts/{id}/exercises", handler.HandleListExercises).Methods("GET", "OPTIONS").Name("list-exercises")
	r.HandleFunc("/logs", handler.HandleListLogs).Methods("GET", "OPTIONS").Name("list-logs")
	r.HandleFunc("/definitions", handler.HandleListDefinitions).Methods("GET", "OPTIONS").Name("list-definitions")
	r.HandleFunc("/fatigue", handler.HandleFatigueSummary).Methods("GET", "OPTIONS").Name("fatigue-summary")
	r.HandleFunc("/fatigue/daily", handler.HandleDailyFatigue).Methods("GET", "OPTIONS").Name("fatigue-daily")
	r.HandleFunc("/charts/volume", handler.HandleVolumeChart).Methods("GET", "OPTIONS").Name("chart-volume")
	r.HandleFunc("/charts/sets", handler.HandleSetsChart).Methods("GET", "OPTIONS").Name("chart-sets")
	r.HandleFunc("/charts/onerm", handler.HandleOneRMChart).Methods("GET", "OPTIONS").Name("chart-onerm")
	r.HandleFunc("/sync/status", handler.HandleSyncStatus).Methods("GET", "OPTIONS").Name("sync-status")
	r.HandleFunc("/alerts", handler.HandleAlerts).Methods("GET", "OPTIONS").Name("alerts")

	limited := func(h http.HandlerFunc) http.Handler {
		if rateLimiter == nil || allowedPerMin <= 0 {
			return h
		}
		return middleware.RateLimit(rateLimiter, "gymstats-mutations", allowedPerMin, metricsManager)(h)
	}
	r.Handle("/workouts", limited(handler.HandleAddWorkout)).Methods("POST", "OPTIONS").Name("add-workout")
	r.Handle("/workouts/{id}", limited(handler.HandleEditWorkout)).Methods("PUT", "OPTIONS").Name("edit-workout")
	r.Handle("/workouts/{id}", limited(handler.HandleDeleteWorkout)).Methods("DELETE", "OPTIONS").Name("delete-workout")
	r.Handle("/workouts/{id}/exercises", limited(handler.HandleAddExercise)).Methods("POST", "OPTIONS").Name("add-exercise")
	r.Handle("/exercises/{id}", limited(handler.HandleEditExercise)).Methods("PUT", "OPTIONS").Name("edit-exercise")
	r.Handle("/exercises/{id}", limited(handler.HandleDeleteExercise)).Methods("DELETE", "OPTIONS").Name("delete-exercise")
	r.Handle("/exercises/{id}/logs", limited(handler.HandleAddLog)).Methods("POST", "OPTIONS").Name("add-log")
	r.Handle("/logs/{id}", limited(handler.HandleReplaceLog)).Methods("PUT", "OPTIONS").Name("replace-log")
	r.Handle("/logs/{id}", limited(handler.HandleDeleteLog)).Methods("DELETE", "OPTIONS").Name("delete-log")
	r.Handle("/definitions", limited(handler.HandleDefineExercise)).Methods("POST", "OPTIONS").Name("define-exercise")
}

func (handler *Handler) HandleListWorkouts(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.workouts.list")
	defer span.End()

	includeArchived := r.URL.Query().Get("archived") == "true"
	list := handler.engine.Store().Workouts(handler.engine.OwnerID(), includeArchived)
	if list == nil {
		list = []workouts.Workout{}
	}
	pkg.WriteJSON(w, list, http.StatusOK)
}

func (handler *Handler) HandleGetWorkout(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.workouts.get")
	defer span.End()

	agg, err := handler.engine.Store().Aggregate(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "get workout", err)
		return
	}
	pkg.WriteJSON(w, agg, http.StatusOK)
}

func (handler *Handler) HandleAddWorkout(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.workouts.add")
	defer span.End()

	var req NameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	workout, err := handler.engine.AddWorkout(req.Name)
	if err != nil {
		writeError(w, "add workout", err)
		return
	}
	log.Debugf("workout added: %s", workout.ID)
	pkg.WriteJSON(w, workout, http.StatusCreated)
}

func (handler *Handler) HandleEditWorkout(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.workouts.edit")
	defer span.End()

	var req EditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]

	workout, err := handler.engine.Store().Workout(id)
	if err != nil {
		writeError(w, "edit workout", err)
		return
	}
	if req.Name != nil {
		if workout, err = handler.engine.RenameWorkout(id, *req.Name); err != nil {
			writeError(w, "rename workout", err)
			return
		}
	}
	if req.Note != nil {
		if workout, err = handler.engine.SetWorkoutNote(id, *req.Note); err != nil {
			writeError(w, "set workout note", err)
			return
		}
	}
	if req.Archived != nil {
		if workout, err = handler.engine.ArchiveWorkout(id, *req.Archived); err != nil {
			writeError(w, "archive workout", err)
			return
		}
	}
	if req.Order != nil {
		if workout, err = handler.engine.ReorderWorkout(id, *req.Order); err != nil {
			writeError(w, "reorder workout", err)
			return
		}
	}
	pkg.WriteJSON(w, workout, http.StatusOK)
}

func (handler *Handler) HandleDeleteWorkout(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.workouts.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := handler.engine.DeleteWorkout(id); err != nil {
		writeError(w, "delete workout", err)
		return
	}
	pkg.WriteJSON(w, DeletedResponse{DeletedID: id}, http.StatusOK)
}

func (handler *Handler) HandleListExercises(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.exercises.list")
	defer span.End()

	id := mux.Vars(r)["id"]
	if !handler.engine.Store().HasWorkout(id) {
		writeError(w, "list exercises", workouts.ErrWorkoutNotFound)
		return
	}
	list := handler.engine.Store().Exercises(id, r.URL.Query().Get("archived") == "true")
	if list == nil {
		list = []workouts.Exercise{}
	}
	pkg.WriteJSON(w, list, http.StatusOK)
}

func (handler *Handler) HandleAddExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.exercises.add")
	defer span.End()

	var req NameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	exercise, err := handler.engine.AddExercise(mux.Vars(r)["id"], req.Name)
	if err != nil {
		writeError(w, "add exercise", err)
		return
	}
	log.Debugf("exercise added: %s [%s]", exercise.ID, exercise.Name)
	pkg.WriteJSON(w, exercise, http.StatusCreated)
}

func (handler *Handler) HandleEditExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.exercises.edit")
	defer span.End()

	var req EditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]

	exercise, err := handler.engine.Store().Exercise(id)
	if err != nil {
		writeError(w, "edit exercise", err)
		return
	}
	if req.Name != nil {
		if exercise, err = handler.engine.RenameExercise(id, *req.Name); err != nil {
			writeError(w, "rename exercise", err)
			return
		}
	}
	if req.Note != nil {
		if exercise, err = handler.engine.SetExerciseNote(id, *req.Note); err != nil {
			writeError(w, "set exercise note", err)
			return
		}
	}
	if req.Archived != nil {
		if exercise, err = handler.engine.ArchiveExercise(id, *req.Archived); err != nil {
			writeError(w, "archive exercise", err)
			return
		}
	}
	if req.Order != nil {
		if exercise, err = handler.engine.ReorderExercise(id, *req.Order); err != nil {
			writeError(w, "reorder exercise", err)
			return
		}
	}
	pkg.WriteJSON(w, exercise, http.StatusOK)
}

func (handler *Handler) HandleDeleteExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.exercises.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := handler.engine.DeleteExercise(id); err != nil {
		writeError(w, "delete exercise", err)
		return
	}
	pkg.WriteJSON(w, DeletedResponse{DeletedID: id}, http.StatusOK)
}

func (handler *Handler) HandleListLogs(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.logs.list")
	defer span.End()

	q := r.URL.Query()
	list := handler.engine.Store().Logs(workouts.LogFilter{
		WorkoutID:    q.Get("workout"),
		ExerciseID:   q.Get("exerciseId"),
		ExerciseName: q.Get("exercise"),
		From:         q.Get("from"),
		To:           q.Get("to"),
	})
	if list == nil {
		list = []workouts.LogEntry{}
	}
	pkg.WriteJSON(w, list, http.StatusOK)
}

func (handler *Handler) HandleAddLog(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.logs.add")
	defer span.End()

	var req SetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := handler.engine.AddLog(mux.Vars(r)["id"], req.Date, req.Weight, req.Reps, req.RPE)
	if err != nil {
		writeError(w, "add log", err)
		return
	}
	pkg.WriteJSON(w, l, http.StatusCreated)
}

func (handler *Handler) HandleReplaceLog(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.logs.replace")
	defer span.End()

	var req SetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := handler.engine.ReplaceLog(mux.Vars(r)["id"], req.Weight, req.Reps, req.RPE)
	if err != nil {
		writeError(w, "replace log", err)
		return
	}
	pkg.WriteJSON(w, l, http.StatusOK)
}

func (handler *Handler) HandleDeleteLog(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.logs.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := handler.engine.DeleteLog(id); err != nil {
		writeError(w, "delete log", err)
		return
	}
	pkg.WriteJSON(w, DeletedResponse{DeletedID: id}, http.StatusOK)
}

func (handler *Handler) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.definitions.list")
	defer span.End()

	pkg.WriteJSON(w, handler.engine.Definitions().List(), http.StatusOK)
}

func (handler *Handler) HandleDefineExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.definitions.add")
	defer span.End()

	var def definitions.Definition
	if !decodeJSON(w, r, &def) {
		return
	}
	if err := handler.engine.DefineExercise(def); err != nil {
		if errors.Is(err, definitions.ErrDefinitionExists) {
			http.Error(w, "error, exercise already defined", http.StatusConflict)
			return
		}
		log.Tracef("define exercise [%s]: %s", def.Name, err)
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}
	stored, _ := handler.engine.Definitions().Get(def.Name)
	pkg.WriteJSON(w, stored, http.StatusCreated)
}

func (handler *Handler) HandleFatigueSummary(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.fatigue.summary")
	defer span.End()

	today := r.URL.Query().Get("today")
	if today == "" {
		today = handler.engine.Today()
	}
	windows, err := parseWindows(r.URL.Query().Get("windows"))
	if err != nil {
		http.Error(w, "error, invalid windows", http.StatusBadRequest)
		return
	}

	summary, err := handler.analyzer.Summary(ctx, today, windows...)
	if err != nil {
		log.Tracef("fatigue summary [%s] %v: %s", today, windows, err)
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}
	pkg.WriteJSON(w, summary, http.StatusOK)
}

func (handler *Handler) HandleDailyFatigue(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.fatigue.daily")
	defer span.End()

	points, err := handler.analyzer.DailyFatigue(ctx)
	writePoints(w, "daily fatigue", points, err)
}

func (handler *Handler) HandleVolumeChart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.charts.volume")
	defer span.End()

	filter, ok := chartFilter(w, r)
	if !ok {
		return
	}
	points, err := handler.analyzer.Volume(ctx, filter)
	writePoints(w, "volume chart", points, err)
}

func (handler *Handler) HandleSetsChart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.charts.sets")
	defer span.End()

	filter, ok := chartFilter(w, r)
	if !ok {
		return
	}
	points, err := handler.analyzer.Sets(ctx, filter)
	writePoints(w, "sets chart", points, err)
}

func (handler *Handler) HandleOneRMChart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.charts.onerm")
	defer span.End()

	exerciseName := r.URL.Query().Get("exercise")
	if exerciseName == "" {
		http.Error(w, "error, exercise empty", http.StatusBadRequest)
		return
	}
	granularity := analytics.Last10
	if g := r.URL.Query().Get("granularity"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil || !analytics.Granularity(n).IsValid() {
			http.Error(w, "error, granularity must be 10, 20 or 30", http.StatusBadRequest)
			return
		}
		granularity = analytics.Granularity(n)
	}

	points, err := handler.analyzer.OneRM(ctx, exerciseName, granularity)
	writePoints(w, "1RM chart", points, err)
}

func (handler *Handler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.sync.status")
	defer span.End()

	queue := handler.engine.Queue()
	entries := queue.Entries()
	if entries == nil {
		entries = []syncqueue.Entry{}
	}
	pkg.WriteJSON(w, SyncStatusResponse{
		OwnerID:         handler.engine.OwnerID(),
		Strategy:        handler.engine.StrategyName(),
		QueueLength:     len(entries),
		HeadAgeSeconds:  queue.HeadAge().Round(time.Second).Seconds(),
		UnsyncedRecords: handler.engine.Store().PendingCount(),
		Entries:         entries,
	}, http.StatusOK)
}

func (handler *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.gymstats.alerts")
	defer span.End()

	var list []alerts.Alert
	if r.URL.Query().Get("all") == "true" {
		list = handler.alerts.Alerts()
	} else {
		list = handler.alerts.Visible()
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	pkg.WriteJSON(w, list, http.StatusOK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Header.Get("Content-Type") != pkg.ContentType.JSON {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Tracef("%s %s, unmarshal json params: %s", r.Method, r.URL.Path, err)
		http.Error(w, "error, invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps engine errors to status codes. Validation and lookup
// errors are the caller's problem and are not logged above trace.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case workouts.IsValidationError(err):
		log.Tracef("%s: %s", op, err)
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, workouts.ErrWorkoutNotFound),
		errors.Is(err, workouts.ErrExerciseNotFound),
		errors.Is(err, workouts.ErrLogNotFound):
		log.Tracef("%s: %s", op, err)
		http.Error(w, "error, "+err.Error(), http.StatusNotFound)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, "error, failed to "+op, http.StatusInternalServerError)
	}
}

func writePoints(w http.ResponseWriter, op string, points []analytics.Point, err error) {
	if err != nil {
		log.Errorf("%s: %s", op, err)
		http.Error(w, "error, failed to get "+op, http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []analytics.Point{}
	}
	pkg.WriteJSON(w, points, http.StatusOK)
}

func chartFilter(w http.ResponseWriter, r *http.Request) (analytics.ChartFilter, bool) {
	q := r.URL.Query()
	filter := analytics.ChartFilter{
		ExerciseName: q.Get("exercise"),
		WorkoutID:    q.Get("workout"),
	}
	if s := q.Get("smooth"); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil || k < 0 {
			http.Error(w, "error, invalid smooth", http.StatusBadRequest)
			return analytics.ChartFilter{}, false
		}
		filter.Smooth = k
	}
	return filter, true
}

// parseWindows reads a comma separated list of day counts, e.g. "1,3,6,9".
func parseWindows(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var windows []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		windows = append(windows, n)
	}
	return windows, nil
}
