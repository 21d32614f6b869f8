package workouts

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWorkoutNotFound  = errors.New("workout not found")
	ErrExerciseNotFound = errors.New("exercise not found")
	ErrLogNotFound      = errors.New("exercise log not found")
)

type Workout struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	Archived  bool      `json:"archived"`
	Note      string    `json:"note"`
	Synced    bool      `json:"synced"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Exercise is one named movement performed within a workout.
type Exercise struct {
	ID        string    `json:"id"`
	WorkoutID string    `json:"workoutId"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	UserMax   float64   `json:"userMax"`
	Order     int       `json:"order"`
	Archived  bool      `json:"archived"`
	Note      string    `json:"note"`
	Synced    bool      `json:"synced"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ExerciseLog is a single set. Logs never change after creation except for
// the Deleted flag; an edit is a delete followed by a new log.
type ExerciseLog struct {
	ID         string    `json:"id"`
	ExerciseID string    `json:"exerciseId"`
	WorkoutID  string    `json:"workoutId"`
	OwnerID    string    `json:"ownerId"`
	Date       string    `json:"date"`
	Weight     float64   `json:"weight"`
	Reps       int       `json:"reps"`
	RPE        float64   `json:"rpe"`
	Synced     bool      `json:"synced"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ExerciseAggregate is an exercise with its logs, ordered by date then creation.
type ExerciseAggregate struct {
	Exercise
	Logs []ExerciseLog `json:"logs"`
}

// WorkoutAggregate is the nested shape of a workout: the workout record with
// all of its exercises (order descending) and their logs.
type WorkoutAggregate struct {
	Workout
	Exercises []ExerciseAggregate `json:"exercises"`
}

// LogEntry is a log joined with the name of the exercise it was performed on.
type LogEntry struct {
	ExerciseLog
	ExerciseName string `json:"exerciseName"`
}

// Snapshot is a flat dump of every record, used for hydration and for
// persisting the store between runs.
type Snapshot struct {
	Workouts  []Workout     `json:"workouts"`
	Exercises []Exercise    `json:"exercises"`
	Logs      []ExerciseLog `json:"logs"`

	// local record revisions; queued changes refer to them, so they have to
	// survive a restart. Never set on snapshots pulled from a remote.
	Revisions map[string]int64 `json:"revisions,omitempty"`
}

// Flatten turns nested aggregates into a flat snapshot.
func Flatten(aggregates []WorkoutAggregate) Snapshot {
	var snap Snapshot
	for _, agg := range aggregates {
		snap.Workouts = append(snap.Workouts, agg.Workout)
		for _, ex := range agg.Exercises {
			snap.Exercises = append(snap.Exercises, ex.Exercise)
			snap.Logs = append(snap.Logs, ex.Logs...)
		}
	}
	return snap
}

// ValidationError is returned for caller mistakes detected before anything is
// applied locally. It never reaches the sync queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
