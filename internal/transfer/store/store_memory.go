package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"diocese/internal/transfer"
)

// InMemoryHistory keeps transfer records in a slice per person. Used in
// tests and when no database is configured.
type InMemoryHistory struct {
	mu      sync.RWMutex
	records []transfer.Record
}

func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{}
}

func (s *InMemoryHistory) Append(ctx context.Context, record transfer.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryHistory) ListByPerson(ctx context.Context, personCode string, transferType transfer.Type) ([]transfer.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []transfer.Record
	for _, r := range s.records {
		if personCode != "" && r.PersonCode != personCode {
			continue
		}
		if transferType != "" && r.Type != transferType {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (s *InMemoryHistory) FindByNaturalKey(ctx context.Context, key transfer.NaturalKey) (transfer.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		candidate := transfer.NaturalKey{
			PersonCode:    r.PersonCode,
			ToZone:        r.ToZone,
			ToDepartment:  r.ToDepartment,
			EffectiveDate: r.EffectiveDate.UTC().Truncate(24 * time.Hour),
		}
		if candidate == key {
			return r, nil
		}
	}
	return transfer.Record{}, ErrNotFound
}

// InMemoryIdempotency is a map-backed fallback for the Redis store. Entries
// never expire; acceptable for tests and single-process runs.
type InMemoryIdempotency struct {
	mu      sync.RWMutex
	results map[string]transfer.Result
}

func NewInMemoryIdempotency() *InMemoryIdempotency {
	return &InMemoryIdempotency{results: make(map[string]transfer.Result)}
}

func (s *InMemoryIdempotency) Get(ctx context.Context, key string) (transfer.Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[key]
	return result, ok, nil
}

func (s *InMemoryIdempotency) Set(ctx context.Context, key string, result transfer.Result, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = result
	return nil
}
