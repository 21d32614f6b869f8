// Package analytics derives training stress, estimated one rep max and chart
// series from the logged sets. Everything here is a pure function of its
// input, except that processing a set may ratchet the user max of its
// exercise definition.
package analytics

import (
	"math"
	"sort"

	"github.com/2beens/gymsync/internal/gymstats/datekey"
	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/workouts"

	log "github.com/sirupsen/logrus"
)

const (
	epleyCoefficient   = 0.0333
	DefaultDailyBudget = 600
	dailyChartDays     = 30
)

// DefaultWindows are the rolling fatigue windows, in days, shown by default.
var DefaultWindows = []int{1, 3, 6, 9}

// Estimated1RM projects the one repetition maximum of a set (Epley).
func Estimated1RM(weight float64, reps int) float64 {
	return weight * (1 + epleyCoefficient*float64(reps))
}

// FrequencyMultiplier discounts fatigue for people who train more often in
// a week.
func FrequencyMultiplier(timesPerWeek int) float64 {
	switch {
	case timesPerWeek <= 0:
		return 1.0
	case timesPerWeek <= 2:
		return 0.966
	case timesPerWeek <= 4:
		return 0.933
	default:
		return 0.9
	}
}

// SetFatigue is the stress of one set. ok is false when the set cannot be
// scored and contributes nothing.
func SetFatigue(weight float64, reps int, rpe, fatigueFactor, userMax, frequencyMultiplier float64) (fatigue float64, ok bool) {
	if invalid(weight) || invalid(rpe) || invalid(fatigueFactor) || invalid(frequencyMultiplier) || reps <= 0 {
		return 0, false
	}
	effectiveMax := math.Max(userMax, Estimated1RM(weight, reps))
	if invalid(effectiveMax) || effectiveMax <= 0 {
		return 0, false
	}
	return float64(reps) * (weight / effectiveMax) * rpe * fatigueFactor * frequencyMultiplier, true
}

func invalid(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Calculator scores sets against the definition table. Scoring a set whose
// estimated max beats the user max raises the user max.
type Calculator struct {
	definitions         *definitions.Table
	frequencyMultiplier float64
	dailyBudget         float64
}

func NewCalculator(defs *definitions.Table, timesPerWeek int, dailyBudget float64) *Calculator {
	if dailyBudget <= 0 {
		dailyBudget = DefaultDailyBudget
	}
	return &Calculator{
		definitions:         defs,
		frequencyMultiplier: FrequencyMultiplier(timesPerWeek),
		dailyBudget:         dailyBudget,
	}
}

func (c *Calculator) DailyBudget() float64 {
	return c.dailyBudget
}

// Fatigue scores one set. Sets of exercises without a definition, deleted
// sets and sets with unusable values score zero.
func (c *Calculator) Fatigue(l workouts.LogEntry) float64 {
	if l.Deleted {
		return 0
	}
	def, ok := c.definitions.Get(l.ExerciseName)
	if !ok {
		return 0
	}

	fatigue, ok := SetFatigue(l.Weight, l.Reps, l.RPE, def.FatigueFactor, def.UserMax, c.frequencyMultiplier)
	if !ok {
		return 0
	}
	// the score above already used max(userMax, e1RM)
	if newMax, raised, err := c.definitions.Ratchet(def.Name, Estimated1RM(l.Weight, l.Reps)); err == nil && raised {
		log.Tracef("analytics: user max of %s raised to %.2f", def.Name, newMax)
	}
	return fatigue
}

// FatigueByDate sums the fatigue of the sets per date key.
func (c *Calculator) FatigueByDate(logs []workouts.LogEntry) map[string]float64 {
	byDate := make(map[string]float64)
	for _, l := range chronological(logs) {
		if f := c.Fatigue(l); f > 0 {
			byDate[l.Date] += f
		}
	}
	return byDate
}

// RollingFatigue is the fatigue of the last days (today included) as a
// percentage of the budget for that many days.
func (c *Calculator) RollingFatigue(logs []workouts.LogEntry, today string, days int) (float64, error) {
	from, to, err := datekey.Window(today, days)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, l := range chronological(logs) {
		if !datekey.Within(l.Date, from, to) {
			continue
		}
		total += c.Fatigue(l)
	}
	return math.Max(0, total/(c.dailyBudget*float64(days))*100), nil
}

// DailyFatigueChart is the fatigue percentage of every day with training,
// rounded, for the most recent 30 such days, oldest first.
func (c *Calculator) DailyFatigueChart(logs []workouts.LogEntry) []Point {
	var points []Point
	for date, fatigue := range c.FatigueByDate(logs) {
		if fatigue <= 0 {
			continue
		}
		points = append(points, Point{Label: date, Value: math.Round(fatigue / c.dailyBudget * 100)})
	}
	sortPoints(points)
	return lastN(points, dailyChartDays)
}

// MuscleFatigue splits the fatigue of a window between muscles: the main
// muscle of an exercise takes the full score, each accessory muscle half.
// Values are percentages of the window budget.
func (c *Calculator) MuscleFatigue(logs []workouts.LogEntry, today string, days int) (map[string]float64, error) {
	from, to, err := datekey.Window(today, days)
	if err != nil {
		return nil, err
	}

	budget := c.dailyBudget * float64(days)
	split := make(map[string]float64)
	for _, l := range chronological(logs) {
		if !datekey.Within(l.Date, from, to) {
			continue
		}
		def, ok := c.definitions.Get(l.ExerciseName)
		if !ok {
			continue
		}
		f := c.Fatigue(l)
		if f <= 0 {
			continue
		}
		split[def.MainMuscle] += f / budget * 100
		for _, m := range def.AccessoryMuscles {
			split[m] += f / 2 / budget * 100
		}
	}
	return split, nil
}

// chronological orders sets by date, then by creation, so user max ratchets
// happen in the order the sets were done.
func chronological(logs []workouts.LogEntry) []workouts.LogEntry {
	sorted := append([]workouts.LogEntry(nil), logs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}
