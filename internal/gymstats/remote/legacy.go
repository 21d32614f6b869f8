package remote

import (
	"context"
	"fmt"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// Legacy stores one nested document per workout, holding its exercises and
// their logs. Every change rewrites the whole workout document.
type Legacy struct {
	workouts Collection
}

func NewLegacy(svc Service) *Legacy {
	return &Legacy{
		workouts: svc.Collection(CollectionWorkoutsLegacy),
	}
}

func (l *Legacy) Name() string {
	return StrategyLegacy
}

func (l *Legacy) Push(ctx context.Context, change workouts.Change) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "remote.legacy.push")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("op", string(change.Op)),
		attribute.String("entity", string(change.Entity)),
		attribute.String("aggregate.id", change.AggregateID),
	)

	if change.Entity == workouts.EntityWorkout && change.Op == workouts.OpDelete {
		return l.workouts.Delete(ctx, change.AggregateID)
	}
	if change.Aggregate == nil {
		return NewPermanentError(fmt.Errorf("%w: change %s without aggregate", ErrInvalidDocument, change))
	}

	doc, err := newDocument(change.Aggregate.ID, change.Aggregate.OwnerID, change.IssuedAt, newWireAggregate(*change.Aggregate))
	if err != nil {
		return err
	}
	if change.Entity == workouts.EntityWorkout && change.Op == workouts.OpAdd {
		return l.workouts.Create(ctx, doc)
	}
	return l.workouts.Update(ctx, doc)
}

func (l *Legacy) Pull(ctx context.Context, ownerID string) (_ workouts.Snapshot, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "remote.legacy.pull")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	docs, err := l.workouts.ListByOwner(ctx, ownerID, Filter{})
	if err != nil {
		return workouts.Snapshot{}, fmt.Errorf("list workouts: %w", err)
	}
	aggregates, err := decodeDocuments[workouts.WorkoutAggregate](docs)
	if err != nil {
		return workouts.Snapshot{}, err
	}
	span.SetAttributes(attribute.Int("workouts", len(aggregates)))
	return workouts.Flatten(aggregates), nil
}
