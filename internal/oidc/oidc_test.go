package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"kars.dev/internal/auth"
	"kars.dev/internal/config"
)

// fakeProvider serves the token and userinfo endpoints a real IdP would.
func fakeProvider(t *testing.T, email string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "post only", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"` + email + `","email_verified":true,"name":"Sam Holder"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func providerService(t *testing.T, srv *httptest.Server, users auth.UserStore) *Service {
	t.Helper()
	cfg := config.Config{
		OIDCClientID:     "kars",
		OIDCClientSecret: "secret",
		OIDCAuthURL:      srv.URL + "/authorize",
		OIDCTokenURL:     srv.URL + "/token",
		OIDCUserinfoURL:  srv.URL + "/userinfo",
		OIDCRedirectURL:  "http://localhost/api/auth/oidc/callback",
	}
	return NewService(cfg, users, WithHTTPClient(srv.Client()))
}

func login(t *testing.T, svc *Service) *auth.User {
	t.Helper()
	_, state, err := svc.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	u, err := svc.Callback(context.Background(), state, "code-abc")
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	return u
}

func TestCallbackProvisionsEmployee(t *testing.T) {
	srv := fakeProvider(t, "sam.holder@example.com")
	users := auth.NewInMemory().Users(context.Background())
	svc := providerService(t, srv, users)

	u := login(t, svc)
	if u.Email != "sam.holder@example.com" {
		t.Fatalf("unexpected email %q", u.Email)
	}
	if u.Role != auth.RoleEmployee || !u.EmailVerified {
		t.Fatalf("unexpected account: %+v", u)
	}
}

func TestCallbackNormalizesProviderEmailCase(t *testing.T) {
	srv := fakeProvider(t, "Sam.Holder@Example.COM")
	ctx := context.Background()
	users := auth.NewInMemory().Users(ctx)
	svc := providerService(t, srv, users)

	first := login(t, svc)
	if first.Email != "sam.holder@example.com" {
		t.Fatalf("expected lowercased account email, got %q", first.Email)
	}

	// A repeat login with the provider's casing must land on the same account.
	second := login(t, svc)
	if second.ID != first.ID {
		t.Fatalf("expected one account, got %s and %s", first.ID, second.ID)
	}
	all, err := users.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single account, got %d", len(all))
	}
}

func TestCallbackMatchesPasswordAccount(t *testing.T) {
	srv := fakeProvider(t, "Sam.Holder@Example.COM")
	ctx := context.Background()
	users := auth.NewInMemory().Users(ctx)
	existing := &auth.User{
		Email:  "sam.holder@example.com",
		Role:   auth.RoleManager,
		Status: auth.UserStatusActive,
	}
	if err := users.Create(ctx, existing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := providerService(t, srv, users)
	u := login(t, svc)
	if u.ID != existing.ID {
		t.Fatalf("expected existing account, got %s", u.ID)
	}
	if u.Role != auth.RoleManager {
		t.Fatalf("role must not be downgraded, got %q", u.Role)
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	srv := fakeProvider(t, "sam.holder@example.com")
	svc := providerService(t, srv, auth.NewInMemory().Users(context.Background()))
	if _, err := svc.Callback(context.Background(), "bogus-state", "code"); err != ErrStateMismatch {
		t.Fatalf("expected ErrStateMismatch, got %v", err)
	}
}
