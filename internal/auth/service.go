package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"kars.dev/internal/ids"
)

const (
	defaultResetTTL        = 1 * time.Hour
	defaultVerificationTTL = 24 * time.Hour
)

// Service provides account registration, credential verification, MFA
// enrollment and single-use token issuance.
type Service struct {
	store Store
	now   func() time.Time

	totpIssuer      string
	resetTTL        time.Duration
	verificationTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTOTPIssuer sets the issuer label shown in authenticator apps.
func WithTOTPIssuer(name string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(name) != "" {
			s.totpIssuer = name
		}
	}
}

// WithResetTTL configures password reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
		}
	}
}

// WithVerificationTTL configures email verification token lifetime.
func WithVerificationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.verificationTTL = ttl
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{
		store:           store,
		now:             time.Now,
		totpIssuer:      "KARS",
		resetTTL:        defaultResetTTL,
		verificationTTL: defaultVerificationTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateCompany registers a company record that campaigns and accounts can
// reference by ID.
func (s *Service) CreateCompany(ctx context.Context, name, domain string) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	c := &Company{
		ID:        ids.New(),
		Name:      name,
		Domain:    strings.ToLower(strings.TrimSpace(domain)),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Companies(ctx).Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCompanies returns all companies.
func (s *Service) ListCompanies(ctx context.Context) ([]*Company, error) {
	return s.store.Companies(ctx).List(ctx)
}

// DeleteCompany removes a company. Accounts keep their company_id; it simply
// stops resolving.
func (s *Service) DeleteCompany(ctx context.Context, id string) error {
	companies := s.store.Companies(ctx)
	if _, err := companies.Find(ctx, id); err != nil {
		return err
	}
	return companies.Delete(ctx, id)
}

// RegisterInput carries the self-service registration payload.
type RegisterInput struct {
	Email        string
	Password     string
	Name         string
	ManagerName  string
	ManagerEmail string
	CompanyID    string
}

// Register creates a new account. The first account ever created becomes the
// admin; everyone else starts as an employee.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	role := RoleEmployee
	count, err := users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		role = RoleAdmin
	}

	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		ManagerName:  strings.TrimSpace(in.ManagerName),
		ManagerEmail: strings.TrimSpace(strings.ToLower(in.ManagerEmail)),
		CompanyID:    strings.TrimSpace(in.CompanyID),
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and, when MFA is enabled, the TOTP code.
func (s *Service) Authenticate(ctx context.Context, email, password, totpCode string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if user.Status != UserStatusActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	if user.MFAEnabled {
		if strings.TrimSpace(totpCode) == "" {
			return nil, ErrMFARequired
		}
		if !VerifyTOTP(totpCode, user.MFASecret) {
			return nil, ErrInvalidCode
		}
	}
	return user, nil
}

// SetupMFA generates a fresh TOTP secret for the user. The secret is stored
// but MFA stays disabled until EnableMFA confirms a valid code.
func (s *Service) SetupMFA(ctx context.Context, userID string) (secret, otpauthURL string, err error) {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return "", "", err
	}
	secret, otpauthURL, err = GenerateTOTPSecret(s.totpIssuer, user.Email)
	if err != nil {
		return "", "", err
	}
	user.MFASecret = secret
	user.MFAEnabled = false
	user.UpdatedAt = s.now().UTC()
	if err := users.Update(ctx, user); err != nil {
		return "", "", err
	}
	return secret, otpauthURL, nil
}

// EnableMFA turns on MFA after the user proves possession of the secret.
func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFASecret == "" {
		return fmt.Errorf("%w: mfa setup has not been started", ErrInvalidInput)
	}
	if !VerifyTOTP(code, user.MFASecret) {
		return ErrInvalidCode
	}
	user.MFAEnabled = true
	user.UpdatedAt = s.now().UTC()
	return users.Update(ctx, user)
}

// DisableMFA clears the secret after a password re-check.
func (s *Service) DisableMFA(ctx context.Context, userID, password string) error {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return ErrUnauthorized
	}
	user.MFASecret = ""
	user.MFAEnabled = false
	user.UpdatedAt = s.now().UTC()
	return users.Update(ctx, user)
}

// IssueToken mints a single-use token of the given purpose. The returned
// string is "<id>.<secret>"; only a SHA-256 hash of the secret is persisted.
func (s *Service) IssueToken(ctx context.Context, userID, purpose string) (string, error) {
	var ttl time.Duration
	switch purpose {
	case PurposePasswordReset:
		ttl = s.resetTTL
	case PurposeEmailVerification:
		ttl = s.verificationTTL
	default:
		return "", fmt.Errorf("%w: unknown token purpose %q", ErrInvalidInput, purpose)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", err
	}
	secretPart := base64.RawURLEncoding.EncodeToString(secretBytes)
	sum := sha256.Sum256([]byte(secretPart))
	now := s.now().UTC()
	tok := &Token{
		ID:        ids.New(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.store.Tokens(ctx).Create(ctx, tok); err != nil {
		return "", err
	}
	return tok.ID + "." + secretPart, nil
}

// ConsumeToken validates a single-use token and burns it. A token is usable
// until marked used or past its expiry; after either, lookups reject it.
func (s *Service) ConsumeToken(ctx context.Context, raw, purpose string) (userID string, err error) {
	tokenID, secretPart, err := splitToken(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	tokens := s.store.Tokens(ctx)
	rec, err := tokens.Find(ctx, tokenID)
	if err != nil {
		return "", ErrInvalidToken
	}
	if rec.Purpose != purpose || rec.Used || s.now().After(rec.ExpiresAt) {
		return "", ErrInvalidToken
	}
	if !secureCompareHash(rec.TokenHash, secretPart) {
		return "", ErrInvalidToken
	}
	if err := tokens.MarkUsed(ctx, rec.ID); err != nil {
		return "", err
	}
	return rec.UserID, nil
}

// VerifyEmail consumes a verification token and flips the flag.
func (s *Service) VerifyEmail(ctx context.Context, raw string) (*User, error) {
	userID, err := s.ConsumeToken(ctx, raw, PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.EmailVerified = true
	user.UpdatedAt = s.now().UTC()
	if err := users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// RequestPasswordReset issues a reset token for the address. The caller is
// responsible for mail delivery; ErrNotFound lets the handler answer 200
// anyway to avoid account enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueToken(ctx, user.ID, PurposePasswordReset)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ResetPassword consumes a reset token and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, raw, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	userID, err := s.ConsumeToken(ctx, raw, PurposePasswordReset)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.Users(ctx).UpdatePassword(ctx, userID, hash)
}

// PurgeExpiredTokens removes tokens past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) error {
	return s.store.Tokens(ctx).DeleteExpired(ctx, s.now().UTC())
}

func splitToken(raw string) (id, secretPart string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secretPart string) bool {
	sum := sha256.Sum256([]byte(secretPart))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
