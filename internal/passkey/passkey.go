// Package passkey implements WebAuthn credential registration and login.
package passkey

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"kars.dev/internal/auth"
	"kars.dev/internal/config"
	"kars.dev/internal/ids"
)

var (
	ErrNotFound       = errors.New("passkey: not found")
	ErrUnknownSession = errors.New("passkey: unknown or expired session")
	ErrNoCredentials  = errors.New("passkey: user has no registered passkeys")
)

// Credential is a stored passkey tied to a user.
type Credential struct {
	ID         string              `json:"id"`
	UserID     string              `json:"user_id"`
	Name       string              `json:"name"`
	Credential webauthn.Credential `json:"-"`
	CreatedAt  time.Time           `json:"created_at"`
	LastUsedAt *time.Time          `json:"last_used_at,omitempty"`
}

// Store persists passkey credentials.
type Store interface {
	Create(ctx context.Context, c *Credential) error
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)
	Update(ctx context.Context, c *Credential) error
	Delete(ctx context.Context, id string) error
}

// Service wraps the go-webauthn ceremony state machine.
type Service struct {
	wa       *webauthn.WebAuthn
	store    Store
	users    auth.UserStore
	sessions *sessionStore
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(cfg config.Config, store Store, users auth.UserStore, opts ...ServiceOption) (*Service, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "KARS",
		RPID:          cfg.RPID,
		RPOrigins:     []string{cfg.RPOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("passkey: webauthn config: %w", err)
	}
	svc := &Service{
		wa:       wa,
		store:    store,
		users:    users,
		sessions: newSessionStore(5 * time.Minute),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// waUser adapts a user plus stored credentials to webauthn.User.
type waUser struct {
	user  *auth.User
	creds []webauthn.Credential
}

func (u waUser) WebAuthnID() []byte { return []byte(u.user.ID) }
func (u waUser) WebAuthnName() string {
	return u.user.Email
}
func (u waUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.Email
}
func (u waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (s *Service) loadUser(ctx context.Context, userID string) (waUser, []*Credential, error) {
	u, err := s.users.Find(ctx, userID)
	if err != nil {
		return waUser{}, nil, err
	}
	stored, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return waUser{}, nil, err
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		creds = append(creds, c.Credential)
	}
	return waUser{user: u, creds: creds}, stored, nil
}

func newSessionID() string {
	raw := make([]byte, 24)
	_, _ = rand.Read(raw)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// BeginRegistration starts the create ceremony for an authenticated user.
func (s *Service) BeginRegistration(ctx context.Context, userID string) (*protocol.CredentialCreation, string, error) {
	wu, stored, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	exclude := make([]protocol.CredentialDescriptor, 0, len(stored))
	for _, c := range stored {
		exclude = append(exclude, c.Credential.Descriptor())
	}
	options, session, err := s.wa.BeginRegistration(wu,
		webauthn.WithExclusions(exclude),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return nil, "", err
	}
	sessionID := newSessionID()
	s.sessions.Put(sessionID, session)
	return options, sessionID, nil
}

// FinishRegistration completes the create ceremony and stores the credential.
func (s *Service) FinishRegistration(ctx context.Context, userID, sessionID, name string, r *http.Request) (*Credential, error) {
	session, ok := s.sessions.Take(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	wu, _, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred, err := s.wa.FinishRegistration(wu, *session, r)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "Passkey"
	}
	stored := &Credential{
		ID:         ids.New(),
		UserID:     userID,
		Name:       name,
		Credential: *cred,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// BeginLogin starts the assertion ceremony for a known email.
func (s *Service) BeginLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, string, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	wu, stored, err := s.loadUser(ctx, u.ID)
	if err != nil {
		return nil, "", err
	}
	if len(stored) == 0 {
		return nil, "", ErrNoCredentials
	}
	options, session, err := s.wa.BeginLogin(wu)
	if err != nil {
		return nil, "", err
	}
	sessionID := newSessionID()
	s.sessions.Put(sessionID, session)
	return options, sessionID, nil
}

// FinishLogin completes the assertion ceremony, bumps the credential usage
// stamp, and returns the authenticated user.
func (s *Service) FinishLogin(ctx context.Context, email, sessionID string, r *http.Request) (*auth.User, error) {
	session, ok := s.sessions.Take(sessionID)
	if !ok {
		return nil, ErrUnknownSession
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	wu, stored, err := s.loadUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	cred, err := s.wa.FinishLogin(wu, *session, r)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	for _, sc := range stored {
		if bytes.Equal(sc.Credential.ID, cred.ID) {
			sc.Credential = *cred
			sc.LastUsedAt = &now
			// Sign-count bookkeeping only; login proceeds even if it fails.
			_ = s.store.Update(ctx, sc)
			break
		}
	}
	return u, nil
}

// List returns the user's registered passkeys.
func (s *Service) List(ctx context.Context, userID string) ([]*Credential, error) {
	return s.store.ListByUser(ctx, userID)
}

// Delete removes one of the user's passkeys.
func (s *Service) Delete(ctx context.Context, userID, credentialID string) error {
	stored, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, c := range stored {
		if c.ID == credentialID {
			return s.store.Delete(ctx, c.ID)
		}
	}
	return ErrNotFound
}
