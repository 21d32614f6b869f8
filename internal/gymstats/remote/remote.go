package remote

import (
	"context"
	"encoding/json"
	"time"
)

const (
	CollectionWorkouts       = "workouts"
	CollectionExercises      = "exercises"
	CollectionExerciseLogs   = "exercise_logs"
	CollectionWorkoutsLegacy = "workouts_legacy"
)

// Document is the unit the remote persistence service stores: an opaque JSON
// body keyed by id and owned by a single user.
type Document struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Filter struct {
	UpdatedSince time.Time
	Limit        int
}

// Collection is the minimal surface of the remote service. Create is an
// upsert keyed by id; Update fails with ErrNotFound for a missing id. Both
// ignore a write older than the stored document.
type Collection interface {
	Create(ctx context.Context, doc Document) error
	Update(ctx context.Context, doc Document) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string, filter Filter) ([]Document, error)
}

type Service interface {
	Collection(name string) Collection
}
