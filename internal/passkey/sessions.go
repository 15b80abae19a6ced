package passkey

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// sessionStore keeps ceremony session data between the begin and finish
// halves of a WebAuthn exchange. Entries self-expire on a per-key timer.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*sessionEntry
}

type sessionEntry struct {
	data  *webauthn.SessionData
	timer *time.Timer
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:     ttl,
		entries: make(map[string]*sessionEntry),
	}
}

func (s *sessionStore) Put(id string, data *webauthn.SessionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[id]; ok {
		old.timer.Stop()
	}
	e := &sessionEntry{data: data}
	e.timer = time.AfterFunc(s.ttl, func() { s.expire(id, e) })
	s.entries[id] = e
}

func (s *sessionStore) Take(id string) (*webauthn.SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e.timer.Stop()
	delete(s.entries, id)
	return e.data, true
}

func (s *sessionStore) expire(id string, e *sessionEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[id]; ok && cur == e {
		delete(s.entries, id)
	}
}
