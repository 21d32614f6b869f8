package mutations

import (
	"context"
	"sync"
)

// sequencer runs remote calls of the same aggregate one after another, in
// the order their slots were reserved.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

type slot struct {
	seq  *sequencer
	key  string
	prev <-chan struct{}
	done chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{
		tails: make(map[string]chan struct{}),
	}
}

// reserve must be called in issue order, before the goroutine doing the
// remote call is started.
func (s *sequencer) reserve(key string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(chan struct{})
	sl := &slot{
		seq:  s,
		key:  key,
		prev: s.tails[key],
		done: done,
	}
	s.tails[key] = done
	return sl
}

// wait blocks until every earlier slot of the same key is released.
func (sl *slot) wait(ctx context.Context) error {
	if sl.prev == nil {
		return nil
	}
	select {
	case <-sl.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sl *slot) release() {
	sl.seq.mu.Lock()
	if sl.seq.tails[sl.key] == sl.done {
		delete(sl.seq.tails, sl.key)
	}
	sl.seq.mu.Unlock()
	close(sl.done)
}

func (s *sequencer) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tails)
}
