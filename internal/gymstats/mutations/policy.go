package mutations

import (
	"fmt"

	"github.com/2beens/gymsync/internal/gymstats/workouts"
)

// Policy says how the engine treats a failed remote attempt of one op type.
type Policy struct {
	// RollbackOnFailure undoes the local apply when the live attempt fails
	// permanently. Never applied to changes that were already queued.
	RollbackOnFailure bool
	// QueueOnPermanent sends a live attempt that failed permanently to the
	// sync queue instead of dropping it. The reconciler discards it with an
	// alert if the replay fails permanently again.
	QueueOnPermanent bool
	// NotFoundIsSuccess treats a missing remote record as the desired outcome.
	NotFoundIsSuccess bool
	// IdempotencyKey identifies the change in the pending sync queue; two
	// changes with the same key are the same change.
	IdempotencyKey func(c workouts.Change) string
}

var policies = map[workouts.OpType]Policy{
	workouts.OpAdd: {
		RollbackOnFailure: true,
		// ids are generated locally, so a create is keyed by the record alone
		IdempotencyKey: func(c workouts.Change) string {
			return "add:" + c.Key()
		},
	},
	workouts.OpEdit: {
		IdempotencyKey: func(c workouts.Change) string {
			return fmt.Sprintf("edit:%s@%d", c.Key(), touchedRevision(c))
		},
	},
	workouts.OpDelete: {
		// already gone locally; the remote delete is at least once
		QueueOnPermanent:  true,
		NotFoundIsSuccess: true,
		IdempotencyKey: func(c workouts.Change) string {
			return "delete:" + c.Key()
		},
	},
}

func PolicyFor(op workouts.OpType) Policy {
	if p, ok := policies[op]; ok {
		return p
	}
	return Policy{
		IdempotencyKey: func(c workouts.Change) string {
			return string(c.Op) + ":" + c.Key()
		},
	}
}

func touchedRevision(c workouts.Change) int64 {
	for _, ref := range c.Touched {
		if ref.ID == c.EntityID {
			return ref.Revision
		}
	}
	return c.IssuedAt.UnixNano()
}
