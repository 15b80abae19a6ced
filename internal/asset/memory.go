package asset

import (
	"context"
	"sort"
	"sync"

	"kars.dev/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory keeps assets in process memory for tests.
type InMemory struct {
	mu     sync.RWMutex
	assets map[string]*Asset
}

func NewInMemory() *InMemory {
	return &InMemory{assets: make(map[string]*Asset)}
}

func (s *InMemory) Create(_ context.Context, a *Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = ids.New()
	}
	cp := *a
	s.assets[a.ID] = &cp
	return nil
}

func (s *InMemory) Find(_ context.Context, id string) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) List(_ context.Context, f Filter) ([]*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Asset
	for _, a := range s.assets {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.CompanyID != "" && a.CompanyID != f.CompanyID {
			continue
		}
		if f.EmployeeEmail != "" && a.EmployeeEmail != f.EmployeeEmail {
			continue
		}
		if f.ManagerEmail != "" && a.ManagerEmail != f.ManagerEmail {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, a *Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[a.ID]; !ok {
		return ErrNotFound
	}
	cp := *a
	s.assets[a.ID] = &cp
	return nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[id]; !ok {
		return ErrNotFound
	}
	delete(s.assets, id)
	return nil
}
