package passkey

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

func TestSessionStoreTakeIsSingleUse(t *testing.T) {
	s := newSessionStore(time.Minute)
	s.Put("sess-1", &webauthn.SessionData{Challenge: "ch-1"})

	data, ok := s.Take("sess-1")
	if !ok || data.Challenge != "ch-1" {
		t.Fatalf("Take = %+v, %v", data, ok)
	}
	if _, ok := s.Take("sess-1"); ok {
		t.Fatalf("second Take succeeded for consumed session")
	}
}

func TestSessionStorePutReplaces(t *testing.T) {
	s := newSessionStore(time.Minute)
	s.Put("sess-1", &webauthn.SessionData{Challenge: "first"})
	s.Put("sess-1", &webauthn.SessionData{Challenge: "second"})

	data, ok := s.Take("sess-1")
	if !ok || data.Challenge != "second" {
		t.Fatalf("Take = %+v, %v; want replacement value", data, ok)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	s := newSessionStore(20 * time.Millisecond)
	s.Put("sess-1", &webauthn.SessionData{Challenge: "ch-1"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		time.Sleep(30 * time.Millisecond)
		s.mu.Lock()
		_, present := s.entries["sess-1"]
		s.mu.Unlock()
		if !present {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never expired")
		}
	}
	if _, ok := s.Take("sess-1"); ok {
		t.Fatalf("Take succeeded for expired session")
	}
}
