package remote

import (
	"github.com/2beens/gymsync/internal/gymstats/workouts"
)

// Wire shapes of the records stored remotely. The synced flag is local state;
// the outer field shadows the embedded one and is always empty, so it is
// never written into a document.

type wireWorkout struct {
	workouts.Workout
	Synced bool `json:"synced,omitempty"`
}

type wireExercise struct {
	workouts.Exercise
	Synced bool `json:"synced,omitempty"`
}

type wireLog struct {
	workouts.ExerciseLog
	Synced bool `json:"synced,omitempty"`
}

type wireExerciseAggregate struct {
	wireExercise
	Logs []wireLog `json:"logs"`
}

type wireAggregate struct {
	wireWorkout
	Exercises []wireExerciseAggregate `json:"exercises"`
}

func newWireAggregate(agg workouts.WorkoutAggregate) wireAggregate {
	w := wireAggregate{
		wireWorkout: wireWorkout{Workout: agg.Workout},
		Exercises:   make([]wireExerciseAggregate, 0, len(agg.Exercises)),
	}
	for _, ex := range agg.Exercises {
		exAgg := wireExerciseAggregate{
			wireExercise: wireExercise{Exercise: ex.Exercise},
			Logs:         make([]wireLog, 0, len(ex.Logs)),
		}
		for _, l := range ex.Logs {
			exAgg.Logs = append(exAgg.Logs, wireLog{ExerciseLog: l})
		}
		w.Exercises = append(w.Exercises, exAgg)
	}
	return w
}
