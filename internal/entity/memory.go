package entity

import (
	"context"
	"sync"
)

// MemorySource is a thread-safe, insertion-ordered in-memory Source.
type MemorySource[ID comparable, E Indexable[ID]] struct {
	mu        sync.RWMutex
	order     []ID
	items     map[ID]E
	noByIDs   bool
	listCalls int
}

// NewMemorySource returns a source holding items in the given order.
func NewMemorySource[ID comparable, E Indexable[ID]](items ...E) *MemorySource[ID, E] {
	s := &MemorySource[ID, E]{items: make(map[ID]E, len(items))}
	for _, e := range items {
		s.Put(e)
	}
	return s
}

// WithoutByIDs makes ByIDs return ErrNotImplemented.
func (s *MemorySource[ID, E]) WithoutByIDs() *MemorySource[ID, E] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noByIDs = true
	return s
}

// Put inserts or replaces e. A replaced entity keeps its position.
func (s *MemorySource[ID, E]) Put(e E) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := e.IndexID()
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = e
}

// Remove deletes the entity with id, if present.
func (s *MemorySource[ID, E]) Remove(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entities.
func (s *MemorySource[ID, E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ListCalls returns how many times ListAll has been called.
func (s *MemorySource[ID, E]) ListCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCalls
}

// ListAll implements Source.
func (s *MemorySource[ID, E]) ListAll(ctx context.Context) ([]E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++
	out := make([]E, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out, nil
}

// ByIDs implements Source.
func (s *MemorySource[ID, E]) ByIDs(ctx context.Context, ids []ID) ([]E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.noByIDs {
		return nil, ErrNotImplemented
	}
	out := make([]E, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.items[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// ByID implements Source.
func (s *MemorySource[ID, E]) ByID(ctx context.Context, id ID) (E, bool, error) {
	var zero E
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[id]
	return e, ok, nil
}
