package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	megabyte          = 1024 * 1024
	defaultCacheSize  = 8 * megabyte
	cacheExpireSecond = 10 * 60
)

//go:generate mockgen -source=$GOFILE -destination=analyzer_mocks_test.go -package=analytics_test

type logSource interface {
	Revision() int64
	Logs(filter workouts.LogFilter) []workouts.LogEntry
}

// ChartFilter narrows chart input to one exercise name or one workout.
type ChartFilter struct {
	ExerciseName string
	WorkoutID    string
	// Smooth is the smoothing group size; 0 or 1 leaves the series as is.
	Smooth int
}

func (f ChartFilter) logFilter() workouts.LogFilter {
	return workouts.LogFilter{
		ExerciseName: f.ExerciseName,
		WorkoutID:    f.WorkoutID,
	}
}

func (f ChartFilter) key() string {
	return f.ExerciseName + "|" + f.WorkoutID + "|" + strconv.Itoa(f.Smooth)
}

type WindowFatigue struct {
	Days    int     `json:"days"`
	Percent float64 `json:"percent"`
}

type MuscleFatigue struct {
	Muscle  string  `json:"muscle"`
	Percent float64 `json:"percent"`
}

// Summary bundles what the dashboard shows about current training stress.
type Summary struct {
	Today   string          `json:"today"`
	Windows []WindowFatigue `json:"windows"`
	// split over the longest window, biggest first
	Muscles []MuscleFatigue `json:"muscles"`
}

// Analyzer answers analytics queries over the local store. Results are
// cached per store revision, so any local change invalidates them.
type Analyzer struct {
	source     logSource
	calculator *Calculator
	cache      *freecache.Cache
}

type AnalyzerParams struct {
	Source       logSource
	Definitions  *definitions.Table
	TimesPerWeek int
	DailyBudget  float64
	// CacheSize in bytes; freecache needs at least 512KB
	CacheSize int
}

func NewAnalyzer(params AnalyzerParams) *Analyzer {
	cacheSize := params.CacheSize
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	defs := params.Definitions
	if defs == nil {
		defs = definitions.Default()
	}
	return &Analyzer{
		source:     params.Source,
		calculator: NewCalculator(defs, params.TimesPerWeek, params.DailyBudget),
		cache:      freecache.NewCache(cacheSize),
	}
}

func (a *Analyzer) Calculator() *Calculator {
	return a.calculator
}

// Summary computes the rolling fatigue windows ending with today and the
// per-muscle split of the longest one.
func (a *Analyzer) Summary(ctx context.Context, today string, windows ...int) (_ *Summary, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.summary")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if len(windows) == 0 {
		windows = DefaultWindows
	}
	longest := 0
	for _, w := range windows {
		if w < 1 {
			return nil, fmt.Errorf("window must cover at least one day, got %d", w)
		}
		if w > longest {
			longest = w
		}
	}

	summary := &Summary{}
	err = a.cached(ctx, fmt.Sprintf("summary|%s|%v", today, windows), summary, func(logs []workouts.LogEntry) (any, error) {
		s := Summary{Today: today}
		for _, w := range windows {
			pct, err := a.calculator.RollingFatigue(logs, today, w)
			if err != nil {
				return nil, err
			}
			s.Windows = append(s.Windows, WindowFatigue{Days: w, Percent: pct})
		}

		split, err := a.calculator.MuscleFatigue(logs, today, longest)
		if err != nil {
			return nil, err
		}
		for muscle, pct := range split {
			s.Muscles = append(s.Muscles, MuscleFatigue{Muscle: muscle, Percent: pct})
		}
		sort.Slice(s.Muscles, func(i, j int) bool {
			if s.Muscles[i].Percent != s.Muscles[j].Percent {
				return s.Muscles[i].Percent > s.Muscles[j].Percent
			}
			return s.Muscles[i].Muscle < s.Muscles[j].Muscle
		})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// RollingFatigue is the fatigue percentage of the last days ending with today.
func (a *Analyzer) RollingFatigue(ctx context.Context, today string, days int) (_ float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.rolling-fatigue")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("days", days))

	var pct float64
	err = a.cached(ctx, fmt.Sprintf("rolling|%s|%d", today, days), &pct, func(logs []workouts.LogEntry) (any, error) {
		return a.calculator.RollingFatigue(logs, today, days)
	})
	return pct, err
}

func (a *Analyzer) DailyFatigue(ctx context.Context) (_ []Point, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.daily-fatigue")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var points []Point
	err = a.cached(ctx, "daily-fatigue", &points, func(logs []workouts.LogEntry) (any, error) {
		return a.calculator.DailyFatigueChart(logs), nil
	})
	return points, err
}

func (a *Analyzer) Volume(ctx context.Context, filter ChartFilter) (_ []Point, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.volume")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var points []Point
	err = a.cachedFiltered(ctx, "volume|"+filter.key(), filter.logFilter(), &points, func(logs []workouts.LogEntry) (any, error) {
		return Smooth(VolumeChart(logs), filter.Smooth), nil
	})
	return points, err
}

func (a *Analyzer) Sets(ctx context.Context, filter ChartFilter) (_ []Point, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.sets")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var points []Point
	err = a.cachedFiltered(ctx, "sets|"+filter.key(), filter.logFilter(), &points, func(logs []workouts.LogEntry) (any, error) {
		return Smooth(SetsChart(logs), filter.Smooth), nil
	})
	return points, err
}

func (a *Analyzer) OneRM(ctx context.Context, exerciseName string, granularity Granularity) (_ []Point, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.one-rm")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("exercise", exerciseName),
		attribute.Int("granularity", int(granularity)),
	)

	var points []Point
	filter := workouts.LogFilter{ExerciseName: exerciseName}
	err = a.cachedFiltered(ctx, fmt.Sprintf("one-rm|%s|%d", exerciseName, granularity), filter, &points, func(logs []workouts.LogEntry) (any, error) {
		return OneRMChart(logs, exerciseName, granularity), nil
	})
	return points, err
}

func (a *Analyzer) cached(ctx context.Context, query string, dst any, compute func(logs []workouts.LogEntry) (any, error)) error {
	return a.cachedFiltered(ctx, query, workouts.LogFilter{}, dst, compute)
}

// cachedFiltered serves dst from the cache when the store has not changed
// since it was computed, and computes and caches it otherwise.
func (a *Analyzer) cachedFiltered(
	_ context.Context,
	query string,
	filter workouts.LogFilter,
	dst any,
	compute func(logs []workouts.LogEntry) (any, error),
) error {
	cacheKey := []byte(fmt.Sprintf("%d::%s", a.source.Revision(), query))
	if cachedBytes, err := a.cache.Get(cacheKey); err == nil {
		if err := json.Unmarshal(cachedBytes, dst); err == nil {
			return nil
		} else {
			log.Errorf("analyzer: unmarshal cached %s: %s", query, err)
		}
	}

	result, err := compute(a.source.Logs(filter))
	if err != nil {
		return err
	}
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", query, err)
	}
	if err := a.cache.Set(cacheKey, resultBytes, cacheExpireSecond); err != nil {
		log.Errorf("analyzer: cache %s: %s", query, err)
	}
	return json.Unmarshal(resultBytes, dst)
}
