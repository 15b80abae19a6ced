// Package oidc implements the authorization-code-with-PKCE login flow
// against a generic OpenID Connect provider.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"kars.dev/internal/auth"
	"kars.dev/internal/config"
	"kars.dev/internal/ids"
)

var (
	ErrStateMismatch = errors.New("oidc: unknown or expired state")
	ErrNoEmail       = errors.New("oidc: provider returned no email claim")
)

// Service drives the provider round-trip and provisions local users.
type Service struct {
	oauth     oauth2.Config
	userinfo  string
	verifiers *VerifierStore
	users     auth.UserStore
	client    *http.Client
	now       func() time.Time
}

type ServiceOption func(*Service)

// WithHTTPClient overrides the client used for the userinfo call.
func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.client = c
		}
	}
}

func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(cfg config.Config, users auth.UserStore, opts ...ServiceOption) *Service {
	svc := &Service{
		oauth: oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OIDCAuthURL,
				TokenURL: cfg.OIDCTokenURL,
			},
		},
		userinfo:  cfg.OIDCUserinfoURL,
		verifiers: NewVerifierStore(10 * time.Minute),
		users:     users,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Begin creates a state and PKCE verifier and returns the provider
// authorization URL to redirect the browser to.
func (s *Service) Begin() (authURL, state string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	state = base64.RawURLEncoding.EncodeToString(raw)
	verifier := oauth2.GenerateVerifier()
	s.verifiers.Put(state, verifier)
	authURL = s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	return authURL, state, nil
}

type userinfoClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Callback completes the flow: exchanges the code using the stored PKCE
// verifier, fetches userinfo, and returns the matching local user, creating
// an employee account on first login.
func (s *Service) Callback(ctx context.Context, state, code string) (*auth.User, error) {
	verifier, ok := s.verifiers.Take(state)
	if !ok {
		return nil, ErrStateMismatch
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	token, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("oidc: code exchange: %w", err)
	}

	claims, err := s.fetchUserinfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, ErrNoEmail
	}
	return s.provision(ctx, claims)
}

func (s *Service) fetchUserinfo(ctx context.Context, token *oauth2.Token) (*userinfoClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userinfo, nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oidc: userinfo returned %d: %s", resp.StatusCode, body)
	}
	var claims userinfoClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("oidc: decode userinfo: %w", err)
	}
	return &claims, nil
}

func (s *Service) provision(ctx context.Context, claims *userinfoClaims) (*auth.User, error) {
	// Identity providers are not consistent about email casing; normalize the
	// same way password registration does so repeat logins hit one account.
	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if u, err := s.users.FindByEmail(ctx, email); err == nil {
		return u, nil
	} else if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	u := &auth.User{
		ID:            ids.New(),
		Email:         email,
		Name:          claims.Name,
		Role:          auth.RoleEmployee,
		EmailVerified: claims.EmailVerified,
		Status:        auth.UserStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
