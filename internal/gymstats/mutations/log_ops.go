package mutations

import (
	"errors"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/pkg"

	log "github.com/sirupsen/logrus"
)

// AddLog records one set. An empty date means today.
func (e *Engine) AddLog(exerciseID, date string, weight float64, reps int, rpe float64) (workouts.ExerciseLog, error) {
	if err := workouts.ValidateID("exerciseId", exerciseID); err != nil {
		return workouts.ExerciseLog{}, err
	}
	if date == "" {
		date = e.Today()
	}
	if err := workouts.ValidateSet(date, weight, reps, rpe); err != nil {
		return workouts.ExerciseLog{}, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.addLog(exerciseID, date, weight, reps, rpe)
}

func (e *Engine) addLog(exerciseID, date string, weight float64, reps int, rpe float64) (workouts.ExerciseLog, error) {
	ex, err := e.store.Exercise(exerciseID)
	if err != nil {
		return workouts.ExerciseLog{}, err
	}

	now := e.now()
	l := workouts.ExerciseLog{
		ID:         pkg.NewID(),
		ExerciseID: exerciseID,
		WorkoutID:  ex.WorkoutID,
		OwnerID:    e.ownerID,
		Date:       date,
		Weight:     weight,
		Reps:       reps,
		RPE:        rpe,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ref, err := e.store.PutLog(l)
	if err != nil {
		return workouts.ExerciseLog{}, err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpAdd,
		Entity:      workouts.EntityLog,
		Name:        "addLog",
		AggregateID: ex.WorkoutID,
		EntityID:    l.ID,
		IssuedAt:    now,
		Log:         &l,
		Touched:     []workouts.Ref{ref},
	})
	return l, nil
}

// DeleteLog soft deletes a log. Missing and already deleted logs are a no-op.
func (e *Engine) DeleteLog(id string) error {
	if err := workouts.ValidateID("id", id); err != nil {
		return err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.deleteLog(id)
}

func (e *Engine) deleteLog(id string) error {
	existing, err := e.store.Log(id)
	if errors.Is(err, workouts.ErrLogNotFound) || (err == nil && existing.Deleted) {
		log.Debugf("engine: delete of missing log %s ignored", id)
		return nil
	}
	if err != nil {
		return err
	}

	now := e.now()
	l, ref, err := e.store.UpdateLog(id, func(l *workouts.ExerciseLog) {
		l.Deleted = true
		l.UpdatedAt = now
	})
	if err != nil {
		return err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpDelete,
		Entity:      workouts.EntityLog,
		Name:        "deleteLog",
		AggregateID: l.WorkoutID,
		EntityID:    id,
		IssuedAt:    now,
		Log:         &l,
		Touched:     []workouts.Ref{ref},
	})
	return nil
}

// ReplaceLog edits a set by deleting it and recording a new one on the same
// exercise and date. Returns the new log.
func (e *Engine) ReplaceLog(id string, weight float64, reps int, rpe float64) (workouts.ExerciseLog, error) {
	if err := workouts.ValidateID("id", id); err != nil {
		return workouts.ExerciseLog{}, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	old, err := e.store.Log(id)
	if err != nil {
		return workouts.ExerciseLog{}, err
	}
	if old.Deleted {
		return workouts.ExerciseLog{}, workouts.ErrLogNotFound
	}
	if err := workouts.ValidateSet(old.Date, weight, reps, rpe); err != nil {
		return workouts.ExerciseLog{}, err
	}

	if err := e.deleteLog(id); err != nil {
		return workouts.ExerciseLog{}, err
	}
	return e.addLog(old.ExerciseID, old.Date, weight, reps, rpe)
}
