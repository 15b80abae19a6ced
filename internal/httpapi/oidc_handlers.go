package httpapi

import (
	"errors"
	"net/http"

	"kars.dev/internal/auth"
	"kars.dev/internal/oidc"
)

func (a *API) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.oidc == nil {
		writeError(w, r, http.StatusNotImplemented, "single sign-on is not configured")
		return
	}
	authURL, _, err := a.oidc.Begin()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *API) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.oidc == nil {
		writeError(w, r, http.StatusNotImplemented, "single sign-on is not configured")
		return
	}
	q := r.URL.Query()
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, r, http.StatusBadRequest, "state and code are required")
		return
	}

	user, err := a.oidc.Callback(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, oidc.ErrStateMismatch) {
			writeError(w, r, http.StatusBadRequest, "unknown or expired state")
			return
		}
		writeError(w, r, http.StatusBadGateway, "identity provider error")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, user.Email, a.sessionTTL(r.Context()))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.recordAudit(auth.ContextWithUser(r.Context(), user.ID, user.Role, user.Email),
		"auth.oidc.login", "user", user.ID, user.Email, "")

	// The SPA finishes the login from the fragment.
	http.Redirect(w, r, a.frontendURL+"/oidc/complete#token="+token, http.StatusFound)
}
