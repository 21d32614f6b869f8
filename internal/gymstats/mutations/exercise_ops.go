package mutations

import (
	"errors"
	"strings"

	"github.com/2beens/gymsync/internal/gymstats/definitions"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/pkg"

	log "github.com/sirupsen/logrus"
)

// AddExercise adds a movement to a workout. Its user max is seeded from the
// definition table.
func (e *Engine) AddExercise(workoutID, name string) (workouts.Exercise, error) {
	if err := workouts.ValidateID("workoutId", workoutID); err != nil {
		return workouts.Exercise{}, err
	}
	if err := workouts.ValidateName(name); err != nil {
		return workouts.Exercise{}, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	name = strings.TrimSpace(name)
	now := e.now()
	ex := workouts.Exercise{
		ID:        pkg.NewID(),
		WorkoutID: workoutID,
		OwnerID:   e.ownerID,
		Name:      name,
		UserMax:   e.definitions.UserMax(name),
		Order:     e.store.NextExerciseOrder(workoutID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ref, err := e.store.PutExercise(ex)
	if err != nil {
		return workouts.Exercise{}, err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpAdd,
		Entity:      workouts.EntityExercise,
		Name:        "addExercise",
		AggregateID: workoutID,
		EntityID:    ex.ID,
		IssuedAt:    now,
		Exercise:    &ex,
		Touched:     []workouts.Ref{ref},
	})
	return ex, nil
}

func (e *Engine) RenameExercise(id, name string) (workouts.Exercise, error) {
	if err := workouts.ValidateName(name); err != nil {
		return workouts.Exercise{}, err
	}
	return e.editExercise("renameExercise", id, func(ex *workouts.Exercise) {
		ex.Name = strings.TrimSpace(name)
	})
}

func (e *Engine) SetExerciseNote(id, note string) (workouts.Exercise, error) {
	if err := workouts.ValidateNote(note); err != nil {
		return workouts.Exercise{}, err
	}
	return e.editExercise("setExerciseNote", id, func(ex *workouts.Exercise) {
		ex.Note = note
	})
}

func (e *Engine) ArchiveExercise(id string, archived bool) (workouts.Exercise, error) {
	return e.editExercise("archiveExercise", id, func(ex *workouts.Exercise) {
		ex.Archived = archived
	})
}

func (e *Engine) ReorderExercise(id string, order int) (workouts.Exercise, error) {
	return e.editExercise("reorderExercise", id, func(ex *workouts.Exercise) {
		ex.Order = order
	})
}

func (e *Engine) editExercise(name, id string, fn func(ex *workouts.Exercise)) (workouts.Exercise, error) {
	if err := workouts.ValidateID("id", id); err != nil {
		return workouts.Exercise{}, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	now := e.now()
	ex, ref, err := e.store.UpdateExercise(id, func(ex *workouts.Exercise) {
		fn(ex)
		ex.UpdatedAt = now
	})
	if err != nil {
		return workouts.Exercise{}, err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpEdit,
		Entity:      workouts.EntityExercise,
		Name:        name,
		AggregateID: ex.WorkoutID,
		EntityID:    id,
		IssuedAt:    now,
		Exercise:    &ex,
		Touched:     []workouts.Ref{ref},
	})
	return ex, nil
}

// DeleteExercise hard deletes an exercise with its logs. Deleting an exercise
// that does not exist is a no-op.
func (e *Engine) DeleteExercise(id string) error {
	if err := workouts.ValidateID("id", id); err != nil {
		return err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	ex, err := e.store.Exercise(id)
	if errors.Is(err, workouts.ErrExerciseNotFound) {
		log.Debugf("engine: delete of missing exercise %s ignored", id)
		return nil
	}
	if err != nil {
		return err
	}
	removed, err := e.store.RemoveExercise(id)
	if err != nil {
		return err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpDelete,
		Entity:      workouts.EntityExercise,
		Name:        "deleteExercise",
		AggregateID: ex.WorkoutID,
		EntityID:    id,
		Removed:     removed,
	})
	return nil
}

// DefineExercise registers a custom exercise in the definition table. It is
// local only and never synced.
func (e *Engine) DefineExercise(def definitions.Definition) error {
	return e.definitions.Define(def)
}
