package workouts

import (
	"encoding/json"
	"fmt"
	"time"
)

type OpType string

const (
	OpAdd    OpType = "add"
	OpEdit   OpType = "edit"
	OpDelete OpType = "delete"
)

func (op OpType) IsValid() bool {
	switch op {
	case OpAdd, OpEdit, OpDelete:
		return true
	default:
		return false
	}
}

type Entity string

const (
	EntityWorkout  Entity = "workout"
	EntityExercise Entity = "exercise"
	EntityLog      Entity = "log"
)

// Ref points at one record at one local revision.
type Ref struct {
	Entity   Entity `json:"entity"`
	ID       string `json:"id"`
	Revision int64  `json:"revision"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s@%d", r.Entity, r.ID, r.Revision)
}

// Change describes one locally applied mutation together with the state it
// produced, so it can be pushed to a remote in any storage shape, now or on a
// later retry.
type Change struct {
	Op          OpType    `json:"op"`
	Entity      Entity    `json:"entity"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"ownerId"`
	AggregateID string    `json:"aggregateId"`
	EntityID    string    `json:"entityId"`
	IssuedAt    time.Time `json:"issuedAt"`

	// post-mutation record; nil for hard deletes
	Workout  *Workout     `json:"workout,omitempty"`
	Exercise *Exercise    `json:"exercise,omitempty"`
	Log      *ExerciseLog `json:"log,omitempty"`

	// children removed together with the entity on a cascading delete
	Removed []Ref `json:"removed,omitempty"`
	// nested post-mutation state of the whole workout; nil once the workout is gone
	Aggregate *WorkoutAggregate `json:"aggregate,omitempty"`
	// records whose synced flag flips once this change is persisted
	Touched []Ref `json:"touched,omitempty"`
}

// Key identifies the record a change is about. Replaying changes with the
// same key converges on the same remote record.
func (c Change) Key() string {
	return string(c.Entity) + ":" + c.EntityID
}

func (c Change) String() string {
	return fmt.Sprintf("%s[%s %s %s]", c.Name, c.Op, c.Entity, c.EntityID)
}

func (c Change) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal change %s: %w", c, err)
	}
	return b, nil
}

func UnmarshalChange(payload json.RawMessage) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("unmarshal change: %w", err)
	}
	if !c.Op.IsValid() {
		return Change{}, fmt.Errorf("unmarshal change: invalid op [%s]", c.Op)
	}
	return c, nil
}
