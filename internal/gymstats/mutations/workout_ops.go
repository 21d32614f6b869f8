package mutations

import (
	"errors"
	"strings"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/pkg"

	log "github.com/sirupsen/logrus"
)

// AddWorkout creates a workout on top of the owner's list.
func (e *Engine) AddWorkout(name string) (workouts.Workout, error) {
	if err := workouts.ValidateName(name); err != nil {
		return workouts.Workout{}, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	now := e.now()
	w := workouts.Workout{
		ID:        pkg.NewID(),
		OwnerID:   e.ownerID,
		Name:      strings.TrimSpace(name),
		Order:     e.store.NextWorkoutOrder(e.ownerID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ref := e.store.PutWorkout(w)

	e.submit(workouts.Change{
		Op:          workouts.OpAdd,
		Entity:      workouts.EntityWorkout,
		Name:        "addWorkout",
		AggregateID: w.ID,
		EntityID:    w.ID,
		IssuedAt:    now,
		Workout:     &w,
		Touched:     []workouts.Ref{ref},
	})
	return w, nil
}

func (e *Engine) RenameWorkout(id, name string) (workouts.Workout, error) {
	if err := workouts.ValidateName(name); err != nil {
		return workouts.Workout{}, err
	}
	return e.editWorkout("renameWorkout", id, func(w *workouts.Workout) {
		w.Name = strings.TrimSpace(name)
	})
}

func (e *Engine) SetWorkoutNote(id, note string) (workouts.Workout, error) {
	if err := workouts.ValidateNote(note); err != nil {
		return workouts.Workout{}, err
	}
	return e.editWorkout("setWorkoutNote", id, func(w *workouts.Workout) {
		w.Note = note
	})
}

// ArchiveWorkout soft deletes (or restores) a workout.
func (e *Engine) ArchiveWorkout(id string, archived bool) (workouts.Workout, error) {
	return e.editWorkout("archiveWorkout", id, func(w *workouts.Workout) {
		w.Archived = archived
	})
}

func (e *Engine) ReorderWorkout(id string, order int) (workouts.Workout, error) {
	return e.editWorkout("reorderWorkout", id, func(w *workouts.Workout) {
		w.Order = order
	})
}

func (e *Engine) editWorkout(name, id string, fn func(w *workouts.Workout)) (workouts.Workout, error) {
	if err := workouts.ValidateID("id", id); err != nil {
		return workouts.Workout{}, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	now := e.now()
	w, ref, err := e.store.UpdateWorkout(id, func(w *workouts.Workout) {
		fn(w)
		w.UpdatedAt = now
	})
	if err != nil {
		return workouts.Workout{}, err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpEdit,
		Entity:      workouts.EntityWorkout,
		Name:        name,
		AggregateID: id,
		EntityID:    id,
		IssuedAt:    now,
		Workout:     &w,
		Touched:     []workouts.Ref{ref},
	})
	return w, nil
}

// DeleteWorkout hard deletes a workout with its exercises and logs. Deleting
// a workout that does not exist is a no-op.
func (e *Engine) DeleteWorkout(id string) error {
	if err := workouts.ValidateID("id", id); err != nil {
		return err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	removed, err := e.store.RemoveWorkout(id)
	if errors.Is(err, workouts.ErrWorkoutNotFound) {
		log.Debugf("engine: delete of missing workout %s ignored", id)
		return nil
	}
	if err != nil {
		return err
	}

	e.submit(workouts.Change{
		Op:          workouts.OpDelete,
		Entity:      workouts.EntityWorkout,
		Name:        "deleteWorkout",
		AggregateID: id,
		EntityID:    id,
		Removed:     removed,
	})
	return nil
}
