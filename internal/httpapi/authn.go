package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"kars.dev/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/auth/register",
	"/api/auth/login",
	"/api/auth/verify-email",
	"/api/auth/forgot-password",
	"/api/auth/reset-password",
	"/api/auth/passkeys/login/begin",
	"/api/auth/passkeys/login/finish",
	"/api/auth/oidc/login",
	"/api/auth/oidc/callback",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), claims.Subject, claims.Role, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole answers true when the caller holds one of the roles; it writes
// the 401/403 response otherwise.
func (a *API) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) bool {
	role, ok := auth.RoleFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	for _, allowed := range roles {
		if role == allowed {
			return true
		}
	}
	writeError(w, r, http.StatusForbidden, "insufficient role")
	return false
}

// requireManage gates the management roles: admin, manager, coordinator.
func (a *API) requireManage(w http.ResponseWriter, r *http.Request) bool {
	return a.requireRole(w, r, auth.RoleAdmin, auth.RoleManager, auth.RoleCoordinator)
}

// currentUser returns the authenticated user id or writes 401.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
