// Package settings stores admin-editable configuration as JSON documents
// keyed by name. Values live in the database so they survive restarts and
// can be changed without a deploy.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("settings: not found")
)

// Well-known setting keys.
const (
	KeySMTP     = "smtp"
	KeyBranding = "branding"
	KeySystem   = "system"
)

// Store persists raw setting documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, updatedAt time.Time) error
	Keys(ctx context.Context) ([]string, error)
}

// SMTPSettings configures the outbound mailer. Password is write-only over
// the API.
type SMTPSettings struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
	UseTLS    bool   `json:"use_tls"`
}

// Branding covers the customer-visible naming in mail and exports.
type Branding struct {
	OrgName      string `json:"org_name"`
	SupportEmail string `json:"support_email"`
	LogoURL      string `json:"logo_url,omitempty"`
}

// SystemSettings holds operational toggles.
type SystemSettings struct {
	RequireEmailVerification bool `json:"require_email_verification"`
	AllowSelfRegistration    bool `json:"allow_self_registration"`
	SessionTTLMinutes        int  `json:"session_ttl_minutes"`
}

// DefaultSystem is what applies before an admin stores the system document:
// open registration, no verification gate, session TTL from server config.
func DefaultSystem() SystemSettings {
	return SystemSettings{AllowSelfRegistration: true}
}

// Service exposes typed access over the raw store.
type Service struct {
	store Store
	now   func() time.Time
}

type ServiceOption func(*Service)

func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// GetRaw returns the stored JSON document for a key.
func (s *Service) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// PutRaw validates and stores a JSON document.
func (s *Service) PutRaw(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("settings: value for %q is not valid JSON", key)
	}
	return s.store.Put(ctx, key, value, s.now().UTC())
}

// Keys lists stored setting names.
func (s *Service) Keys(ctx context.Context) ([]string, error) {
	return s.store.Keys(ctx)
}

func get[T any](ctx context.Context, s *Service, key string) (*T, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("settings: decode %q: %w", key, err)
	}
	return &v, nil
}

func put(ctx context.Context, s *Service, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, key, raw, s.now().UTC())
}

// SMTP returns the stored mailer settings, ErrNotFound when never configured.
func (s *Service) SMTP(ctx context.Context) (*SMTPSettings, error) {
	return get[SMTPSettings](ctx, s, KeySMTP)
}

func (s *Service) PutSMTP(ctx context.Context, v SMTPSettings) error {
	return put(ctx, s, KeySMTP, v)
}

func (s *Service) Branding(ctx context.Context) (*Branding, error) {
	return get[Branding](ctx, s, KeyBranding)
}

func (s *Service) PutBranding(ctx context.Context, v Branding) error {
	return put(ctx, s, KeyBranding, v)
}

func (s *Service) System(ctx context.Context) (*SystemSettings, error) {
	return get[SystemSettings](ctx, s, KeySystem)
}

func (s *Service) PutSystem(ctx context.Context, v SystemSettings) error {
	return put(ctx, s, KeySystem, v)
}
