package passkey

import (
	"context"
	"sort"
	"sync"

	"kars.dev/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory is a map-backed Store for tests.
type InMemory struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

func NewInMemory() *InMemory {
	return &InMemory{creds: make(map[string]*Credential)}
}

func (s *InMemory) Create(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	cp := *c
	s.creds[c.ID] = &cp
	return nil
}

func (s *InMemory) ListByUser(_ context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, c := range s.creds {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) Update(_ context.Context, c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	s.creds[c.ID] = &cp
	return nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[id]; !ok {
		return ErrNotFound
	}
	delete(s.creds, id)
	return nil
}
