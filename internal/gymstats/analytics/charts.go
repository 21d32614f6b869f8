package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
)

// Point is one point of a chart series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Granularity selects how much 1RM history a chart covers.
type Granularity int

const (
	// Last10 shows the last 10 days with data as they are.
	Last10 Granularity = 10
	// Last20 averages the last 20 days with data in pairs.
	Last20 Granularity = 20
	// Last30 averages the last 30 days with data in threes.
	Last30 Granularity = 30
)

func (g Granularity) IsValid() bool {
	return g == Last10 || g == Last20 || g == Last30
}

func (g Granularity) groupSize() int {
	switch g {
	case Last20:
		return 2
	case Last30:
		return 3
	default:
		return 1
	}
}

// VolumeChart sums weight times reps per date, oldest first.
func VolumeChart(logs []workouts.LogEntry) []Point {
	return perDate(logs, func(l workouts.LogEntry) float64 {
		return l.Weight * float64(l.Reps)
	})
}

// SetsChart counts sets per date, oldest first.
func SetsChart(logs []workouts.LogEntry) []Point {
	return perDate(logs, func(workouts.LogEntry) float64 {
		return 1
	})
}

func perDate(logs []workouts.LogEntry, value func(l workouts.LogEntry) float64) []Point {
	byDate := make(map[string]float64)
	for _, l := range logs {
		if l.Deleted {
			continue
		}
		byDate[l.Date] += value(l)
	}

	points := make([]Point, 0, len(byDate))
	for date, v := range byDate {
		points = append(points, Point{Label: date, Value: v})
	}
	sortPoints(points)
	return points
}

// Smooth downsamples a series by replacing each run of k consecutive points
// with their rounded mean, labelled "first - last". The oldest points are
// dropped so the length divides by k. Series shorter than k, and k below 2,
// are returned unchanged.
func Smooth(series []Point, k int) []Point {
	if k <= 1 || len(series) < k {
		return series
	}

	trimmed := series[len(series)%k:]
	smoothed := make([]Point, 0, len(trimmed)/k)
	for i := 0; i < len(trimmed); i += k {
		group := trimmed[i : i+k]
		var sum float64
		for _, p := range group {
			sum += p.Value
		}
		smoothed = append(smoothed, Point{
			Label: fmt.Sprintf("%s - %s", group[0].Label, group[k-1].Label),
			Value: math.Round(sum / float64(k)),
		})
	}
	return smoothed
}

// OneRMChart reports the best estimated one rep max per date for the
// exercise, over the window the granularity selects.
func OneRMChart(logs []workouts.LogEntry, exerciseName string, granularity Granularity) []Point {
	if !granularity.IsValid() {
		granularity = Last10
	}

	best := make(map[string]float64)
	for _, l := range logs {
		if l.Deleted || l.ExerciseName != exerciseName || l.Reps <= 0 || invalid(l.Weight) {
			continue
		}
		if e1rm := Estimated1RM(l.Weight, l.Reps); e1rm > best[l.Date] {
			best[l.Date] = e1rm
		}
	}

	points := make([]Point, 0, len(best))
	for date, v := range best {
		points = append(points, Point{Label: date, Value: math.Round(v*100) / 100})
	}
	sortPoints(points)
	return Smooth(lastN(points, int(granularity)), granularity.groupSize())
}

func sortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Label < points[j].Label
	})
}

func lastN(points []Point, n int) []Point {
	if len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
