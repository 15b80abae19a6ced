package oidc

import (
	"sync"
	"time"
)

// VerifierStore holds PKCE verifiers keyed by OAuth state for the window
// between the authorize redirect and the callback. Entries expire on a
// per-key timer; storing a second verifier under the same state replaces
// the value and cancels the earlier timer so stale timers never pile up.
type VerifierStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*verifierEntry
}

type verifierEntry struct {
	verifier string
	timer    *time.Timer
}

// NewVerifierStore creates a store with the given entry lifetime.
func NewVerifierStore(ttl time.Duration) *VerifierStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &VerifierStore{
		ttl:     ttl,
		entries: make(map[string]*verifierEntry),
	}
}

// Put stores a verifier under state, displacing any existing entry.
func (s *VerifierStore) Put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[state]; ok {
		old.timer.Stop()
	}
	e := &verifierEntry{verifier: verifier}
	e.timer = time.AfterFunc(s.ttl, func() { s.expire(state, e) })
	s.entries[state] = e
}

// Take removes and returns the verifier for state. The second return is
// false when the state is unknown or expired.
func (s *VerifierStore) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	if !ok {
		return "", false
	}
	e.timer.Stop()
	delete(s.entries, state)
	return e.verifier, true
}

// Len reports the number of live entries.
func (s *VerifierStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// expire removes the entry only if it is still the one the timer was armed
// for; a concurrent Put has already replaced it otherwise.
func (s *VerifierStore) expire(state string, e *verifierEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[state]; ok && cur == e {
		delete(s.entries, state)
	}
}
