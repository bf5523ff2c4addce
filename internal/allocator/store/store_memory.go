package store

import (
	"context"
	"sync"

	"diocese/internal/allocator"
)

// InMemorySequenceStore keeps counters in a mutex-guarded map. It backs unit
// tests and local runs; correctness under concurrent allocation matches the
// Postgres implementation, durability does not.
type InMemorySequenceStore struct {
	mu       sync.Mutex
	counters map[allocator.Scope]int64
}

func NewInMemorySequenceStore() *InMemorySequenceStore {
	return &InMemorySequenceStore{counters: make(map[allocator.Scope]int64)}
}

func (s *InMemorySequenceStore) Next(_ context.Context, scope allocator.Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[scope]++
	return s.counters[scope], nil
}

func (s *InMemorySequenceStore) Sync(_ context.Context, scope allocator.Scope, floor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[scope] < floor {
		s.counters[scope] = floor
	}
	return nil
}

// LastIssued reports the current counter value for inspection in tests.
func (s *InMemorySequenceStore) LastIssued(scope allocator.Scope) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[scope]
}
