package attest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kars.dev/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory is a map-backed Store used by handler tests.
type InMemory struct {
	mu        sync.RWMutex
	campaigns map[string]*Campaign
	records   map[string]*Record
	invites   map[string]*PendingInvite
}

func NewInMemory() *InMemory {
	return &InMemory{
		campaigns: make(map[string]*Campaign),
		records:   make(map[string]*Record),
		invites:   make(map[string]*PendingInvite),
	}
}

func (s *InMemory) Campaigns(context.Context) CampaignStore { return (*memCampaigns)(s) }
func (s *InMemory) Records(context.Context) RecordStore     { return (*memRecords)(s) }
func (s *InMemory) Invites(context.Context) InviteStore     { return (*memInvites)(s) }

type memCampaigns InMemory

func (s *memCampaigns) Create(_ context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *memCampaigns) Find(_ context.Context, id string) (*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memCampaigns) List(context.Context) ([]*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memCampaigns) Update(_ context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	s.campaigns[c.ID] = &cp
	return nil
}

func (s *memCampaigns) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return ErrNotFound
	}
	delete(s.campaigns, id)
	return nil
}

type memRecords InMemory

func (s *memRecords) Create(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.CampaignID == r.CampaignID && existing.UserID == r.UserID {
			return fmt.Errorf("attest: record exists for campaign %s user %s", r.CampaignID, r.UserID)
		}
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

func (s *memRecords) Find(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memRecords) FindByCampaignAndUser(_ context.Context, campaignID, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.CampaignID == campaignID && r.UserID == userID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memRecords) ListByCampaign(_ context.Context, campaignID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.CampaignID == campaignID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memRecords) ListByUser(_ context.Context, userID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memRecords) Update(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	s.records[r.ID] = &cp
	return nil
}

type memInvites InMemory

func (s *memInvites) Create(_ context.Context, inv *PendingInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	cp := *inv
	s.invites[inv.ID] = &cp
	return nil
}

func (s *memInvites) FindByToken(_ context.Context, token string) (*PendingInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invites {
		if inv.InviteToken == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memInvites) ListByEmail(_ context.Context, email string) ([]*PendingInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PendingInvite
	for _, inv := range s.invites {
		if inv.EmployeeEmail == email {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memInvites) ListByCampaign(_ context.Context, campaignID string) ([]*PendingInvite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PendingInvite
	for _, inv := range s.invites {
		if inv.CampaignID == campaignID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memInvites) Update(_ context.Context, inv *PendingInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invites[inv.ID]; !ok {
		return ErrNotFound
	}
	cp := *inv
	s.invites[inv.ID] = &cp
	return nil
}
