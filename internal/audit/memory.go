package audit

import (
	"context"
	"sort"
	"sync"

	"kars.dev/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory keeps audit entries in process memory for tests.
type InMemory struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *InMemory) Query(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.PerformedBy != "" && e.PerformedBy != f.PerformedBy {
			continue
		}
		if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.OccurredAt.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemory) Wipe(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.entries))
	s.entries = nil
	return n, nil
}
