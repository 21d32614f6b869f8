package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/2beens/gymsync/internal/gymstats/kvstore"
	"github.com/2beens/gymsync/internal/gymstats/workouts"
	"github.com/2beens/gymsync/pkg"
)

const keyPrefix = "gymstats:pending-sync:"

var ErrHeadMismatch = errors.New("entry is not the queue head")

// Entry is one change that failed to reach the remote and waits for a retry.
// The payload is opaque to the queue.
type Entry struct {
	ID            string          `json:"id"`
	Key           string          `json:"key,omitempty"`
	Type          workouts.OpType `json:"type"`
	AggregateID   string          `json:"aggregateId"`
	EntityID      string          `json:"entityId"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
	LastAttemptAt time.Time       `json:"lastAttemptAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
}

func Key(ownerID string) string {
	return keyPrefix + ownerID
}

// Queue is a FIFO of entries, written through to durable local storage on
// every change. Only the head is ever retried or removed.
type Queue struct {
	mu      sync.Mutex
	store   kvstore.Store
	key     string
	entries []Entry
	now     func() time.Time
}

// NewQueue loads the queue of the given owner from the store.
func NewQueue(ctx context.Context, store kvstore.Store, ownerID string) (*Queue, error) {
	q := &Queue{
		store: store,
		key:   Key(ownerID),
		now:   time.Now,
	}

	raw, found, err := store.Get(ctx, q.key)
	if err != nil {
		return nil, fmt.Errorf("load pending sync queue: %w", err)
	}
	if found && raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.entries); err != nil {
			return nil, fmt.Errorf("decode pending sync queue: %w", err)
		}
	}
	return q, nil
}

// Append adds an entry to the tail. An entry carrying the key of one already
// queued is not added again; the queued one is returned instead. The entry
// stays queued in memory even when persisting fails.
func (q *Queue) Append(ctx context.Context, e Entry) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.Key != "" {
		for _, queued := range q.entries {
			if queued.Key == e.Key {
				return queued, nil
			}
		}
	}
	if e.ID == "" {
		e.ID = pkg.NewID()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = q.now()
	}
	q.entries = append(q.entries, e)
	return e, q.persist(ctx)
}

func (q *Queue) Head() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// Pop removes the head, provided it is still the entry with the given id.
func (q *Queue) Pop(ctx context.Context, id string) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || q.entries[0].ID != id {
		return Entry{}, ErrHeadMismatch
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, q.persist(ctx)
}

// RecordFailure notes a failed retry of the head.
func (q *Queue) RecordFailure(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 || q.entries[0].ID != id {
		return ErrHeadMismatch
	}
	q.entries[0].Attempts++
	q.entries[0].LastAttemptAt = q.now()
	if cause != nil {
		q.entries[0].LastError = cause.Error()
	}
	return q.persist(ctx)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// HasAggregate reports whether any queued entry belongs to the aggregate.
func (q *Queue) HasAggregate(aggregateID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.AggregateID == aggregateID {
			return true
		}
	}
	return false
}

// EntityIDs returns the ids of every entity with a queued change.
func (q *Queue) EntityIDs() map[string]bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make(map[string]bool, len(q.entries))
	for _, e := range q.entries {
		ids[e.EntityID] = true
	}
	return ids
}

// HeadAge is how long the head has been waiting; zero for an empty queue.
func (q *Queue) HeadAge() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return 0
	}
	return q.now().Sub(q.entries[0].EnqueuedAt)
}

// persist must be called with the lock held.
func (q *Queue) persist(ctx context.Context) error {
	entries := q.entries
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode pending sync queue: %w", err)
	}
	if err := q.store.Set(ctx, q.key, string(raw)); err != nil {
		return fmt.Errorf("persist pending sync queue: %w", err)
	}
	return nil
}
