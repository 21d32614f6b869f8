package remote

import (
	"context"
	"fmt"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Normalized stores flat records, one collection per entity kind.
type Normalized struct {
	workouts  Collection
	exercises Collection
	logs      Collection
}

func NewNormalized(svc Service) *Normalized {
	return &Normalized{
		workouts:  svc.Collection(CollectionWorkouts),
		exercises: svc.Collection(CollectionExercises),
		logs:      svc.Collection(CollectionExerciseLogs),
	}
}

func (n *Normalized) Name() string {
	return StrategyNormalized
}

func (n *Normalized) Push(ctx context.Context, change workouts.Change) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "remote.normalized.push")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("op", string(change.Op)),
		attribute.String("entity", string(change.Entity)),
		attribute.String("entity.id", change.EntityID),
	)

	switch change.Entity {
	case workouts.EntityWorkout:
		if change.Op == workouts.OpDelete {
			return n.deleteCascade(ctx, change)
		}
		if change.Workout == nil {
			return NewPermanentError(fmt.Errorf("%w: workout change without record", ErrInvalidDocument))
		}
		doc, err := newDocument(change.Workout.ID, change.Workout.OwnerID, change.Workout.UpdatedAt, wireWorkout{Workout: *change.Workout})
		if err != nil {
			return err
		}
		return write(ctx, n.workouts, change.Op, doc)
	case workouts.EntityExercise:
		if change.Op == workouts.OpDelete {
			return n.deleteCascade(ctx, change)
		}
		if change.Exercise == nil {
			return NewPermanentError(fmt.Errorf("%w: exercise change without record", ErrInvalidDocument))
		}
		doc, err := newDocument(change.Exercise.ID, change.Exercise.OwnerID, change.Exercise.UpdatedAt, wireExercise{Exercise: *change.Exercise})
		if err != nil {
			return err
		}
		return write(ctx, n.exercises, change.Op, doc)
	case workouts.EntityLog:
		if change.Log == nil {
			// a hard delete of a log
			return n.logs.Delete(ctx, change.EntityID)
		}
		doc, err := newDocument(change.Log.ID, change.Log.OwnerID, change.Log.UpdatedAt, wireLog{ExerciseLog: *change.Log})
		if err != nil {
			return err
		}
		// soft delete travels as an update of the deleted flag
		op := change.Op
		if op == workouts.OpDelete {
			op = workouts.OpEdit
		}
		return write(ctx, n.logs, op, doc)
	default:
		return NewPermanentError(fmt.Errorf("%w: unknown entity [%s]", ErrInvalidDocument, change.Entity))
	}
}

func write(ctx context.Context, c Collection, op workouts.OpType, doc Document) error {
	if op == workouts.OpAdd {
		return c.Create(ctx, doc)
	}
	return c.Update(ctx, doc)
}

// deleteCascade removes the children first, so a retry after a partial
// failure never leaves orphans behind.
func (n *Normalized) deleteCascade(ctx context.Context, change workouts.Change) error {
	for _, ref := range change.Removed {
		var c Collection
		switch ref.Entity {
		case workouts.EntityLog:
			c = n.logs
		case workouts.EntityExercise:
			c = n.exercises
		default:
			continue
		}
		if err := c.Delete(ctx, ref.ID); err != nil && !IsNotFound(err) {
			return fmt.Errorf("delete %s: %w", ref, err)
		}
	}

	if change.Entity == workouts.EntityWorkout {
		return n.workouts.Delete(ctx, change.EntityID)
	}
	return n.exercises.Delete(ctx, change.EntityID)
}

func (n *Normalized) Pull(ctx context.Context, ownerID string) (_ workouts.Snapshot, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "remote.normalized.pull")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var snap workouts.Snapshot

	docs, err := n.workouts.ListByOwner(ctx, ownerID, Filter{})
	if err != nil {
		return snap, fmt.Errorf("list workouts: %w", err)
	}
	if snap.Workouts, err = decodeDocuments[workouts.Workout](docs); err != nil {
		return snap, err
	}

	docs, err = n.exercises.ListByOwner(ctx, ownerID, Filter{})
	if err != nil {
		return snap, fmt.Errorf("list exercises: %w", err)
	}
	if snap.Exercises, err = decodeDocuments[workouts.Exercise](docs); err != nil {
		return snap, err
	}

	docs, err = n.logs.ListByOwner(ctx, ownerID, Filter{})
	if err != nil {
		return snap, fmt.Errorf("list exercise logs: %w", err)
	}
	if snap.Logs, err = decodeDocuments[workouts.ExerciseLog](docs); err != nil {
		return snap, err
	}

	span.SetAttributes(
		attribute.Int("workouts", len(snap.Workouts)),
		attribute.Int("exercises", len(snap.Exercises)),
		attribute.Int("logs", len(snap.Logs)),
	)
	return snap, nil
}
