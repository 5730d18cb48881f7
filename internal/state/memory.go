package state

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current(), nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.current())
	if err != nil {
		return err
	}
	if next != nil {
		cloned := next.Clone()
		s.snap = &cloned
	}
	return nil
}

func (s *MemoryStore) current() *Snapshot {
	if s.snap == nil {
		return nil
	}
	cloned := s.snap.Clone()
	return &cloned
}
