package auth

import (
	"context"
	"testing"
	"time"
)

func setTestSecret(t *testing.T) {
	t.Helper()
	t.Setenv(secretEnvVariable, "test-secret-0123456789")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("user-1", RoleManager, "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.Subject)
	}
	if claims.Role != RoleManager {
		t.Fatalf("expected role manager, got %q", claims.Role)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("expected email claim, got %q", claims.Email)
	}
}

func TestGenerateTokenRejectsUnknownRole(t *testing.T) {
	setTestSecret(t)
	if _, err := GenerateToken("user-1", "superuser", "", time.Hour); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("user-1", RoleEmployee, "", 1*time.Nanosecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := ParseAndValidate(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	setTestSecret(t)

	token, err := GenerateToken("user-1", RoleEmployee, "", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAndValidate(token + "x"); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithUser(context.Background(), "user-1", RoleCoordinator, "c@example.com")

	if id, ok := UserIDFromContext(ctx); !ok || id != "user-1" {
		t.Fatalf("user id round trip failed: %q %v", id, ok)
	}
	if role, ok := RoleFromContext(ctx); !ok || role != RoleCoordinator {
		t.Fatalf("role round trip failed: %q %v", role, ok)
	}
	if email, ok := EmailFromContext(ctx); !ok || email != "c@example.com" {
		t.Fatalf("email round trip failed: %q %v", email, ok)
	}
	if !HasRole(ctx, RoleCoordinator) || HasRole(ctx, RoleAdmin) {
		t.Fatalf("HasRole mismatch")
	}
}
