package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// Call records one request received by the MemoryService.
type Call struct {
	Collection string
	Op         Op
	ID         string
}

// FaultFunc decides whether a request fails. A nil return lets it through.
type FaultFunc func(call Call) error

// MemoryService is an in-process remote, used for tests and for
// deployments without a backend.
type MemoryService struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	calls       []Call
	fault       FaultFunc
}

func NewMemoryService() *MemoryService {
	return &MemoryService{
		collections: make(map[string]map[string]Document),
	}
}

func (s *MemoryService) Collection(name string) Collection {
	return &memoryCollection{
		svc:  s,
		name: name,
	}
}

// SetFault installs a fault injector; nil removes it.
func (s *MemoryService) SetFault(fault FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fault
}

func (s *MemoryService) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Documents returns the stored documents of a collection sorted by id.
func (s *MemoryService) Documents(collection string) []Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (s *MemoryService) Document(collection, id string) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	return doc, ok
}

// call registers the request and runs the fault injector. Must be called
// with the lock held.
func (s *MemoryService) call(c Call) error {
	s.calls = append(s.calls, c)
	if s.fault == nil {
		return nil
	}
	return s.fault(c)
}

type memoryCollection struct {
	svc  *MemoryService
	name string
}

func (c *memoryCollection) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDocument)
	}

	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if err := c.svc.call(Call{Collection: c.name, Op: OpCreate, ID: doc.ID}); err != nil {
		return err
	}

	docs, ok := c.svc.collections[c.name]
	if !ok {
		docs = make(map[string]Document)
		c.svc.collections[c.name] = docs
	}
	if existing, ok := docs[doc.ID]; ok && existing.UpdatedAt.After(doc.UpdatedAt) {
		return nil
	}
	docs[doc.ID] = doc
	return nil
}

func (c *memoryCollection) Update(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if err := c.svc.call(Call{Collection: c.name, Op: OpUpdate, ID: doc.ID}); err != nil {
		return err
	}

	existing, ok := c.svc.collections[c.name][doc.ID]
	if !ok {
		return fmt.Errorf("%s/%s: %w", c.name, doc.ID, ErrNotFound)
	}
	if existing.UpdatedAt.After(doc.UpdatedAt) {
		return nil
	}
	c.svc.collections[c.name][doc.ID] = doc
	return nil
}

func (c *memoryCollection) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if err := c.svc.call(Call{Collection: c.name, Op: OpDelete, ID: id}); err != nil {
		return err
	}

	if _, ok := c.svc.collections[c.name][id]; !ok {
		return fmt.Errorf("%s/%s: %w", c.name, id, ErrNotFound)
	}
	delete(c.svc.collections[c.name], id)
	return nil
}

func (c *memoryCollection) ListByOwner(ctx context.Context, ownerID string, filter Filter) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.svc.mu.Lock()
	defer c.svc.mu.Unlock()
	if err := c.svc.call(Call{Collection: c.name, Op: OpList, ID: ownerID}); err != nil {
		return nil, err
	}

	var docs []Document
	for _, doc := range c.svc.collections[c.name] {
		if doc.OwnerID != ownerID {
			continue
		}
		if !filter.UpdatedSince.IsZero() && doc.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].UpdatedAt.Before(docs[j].UpdatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	if filter.Limit > 0 && len(docs) > filter.Limit {
		docs = docs[:filter.Limit]
	}
	return docs, nil
}
