package settings

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemory is a map-backed Store for tests.
type InMemory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{values: make(map[string][]byte)}
}

func (s *InMemory) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *InMemory) Put(_ context.Context, key string, value []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
	return nil
}

func (s *InMemory) Keys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
