package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"kars.dev/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory is a Store kept entirely in process memory. Handler tests use it
// in place of a database.
type InMemory struct {
	mu        sync.RWMutex
	users     map[string]*User
	companies map[string]*Company
	tokens    map[string]*Token
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:     make(map[string]*User),
		companies: make(map[string]*Company),
		tokens:    make(map[string]*Token),
	}
}

func (s *InMemory) Users(context.Context) UserStore        { return (*memUsers)(s) }
func (s *InMemory) Companies(context.Context) CompanyStore { return (*memCompanies)(s) }
func (s *InMemory) Tokens(context.Context) TokenStore      { return (*memTokens)(s) }

type memUsers InMemory

func (s *memUsers) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUsers) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUsers) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memUsers) ListByCompany(ctx context.Context, companyID string) ([]*User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*User
	for _, u := range all {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memUsers) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memUsers) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memUsers) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

type memCompanies InMemory

func (s *memCompanies) Create(_ context.Context, c *Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	cp := *c
	s.companies[c.ID] = &cp
	return nil
}

func (s *memCompanies) Find(_ context.Context, id string) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memCompanies) List(_ context.Context) ([]*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Company, 0, len(s.companies))
	for _, c := range s.companies {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memCompanies) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.companies, id)
	return nil
}

type memTokens InMemory

func (s *memTokens) Create(_ context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *memTokens) Find(_ context.Context, id string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTokens) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.Used {
		return ErrInvalidToken
	}
	t.Used = true
	return nil
}

func (s *memTokens) DeleteExpired(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(before) || t.Used {
			delete(s.tokens, id)
		}
	}
	return nil
}
