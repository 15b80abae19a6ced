package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"kars.dev/internal/auth"
	"kars.dev/internal/passkey"
)

func (a *API) passkeysEnabled(w http.ResponseWriter, r *http.Request) bool {
	if a.passkeys == nil {
		writeError(w, r, http.StatusNotImplemented, "passkeys are not configured")
		return false
	}
	return true
}

func (a *API) handlePasskeysCollection(w http.ResponseWriter, r *http.Request) {
	if !a.passkeysEnabled(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	creds, err := a.passkeys.List(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": creds})
}

func (a *API) handlePasskeyResource(w http.ResponseWriter, r *http.Request) {
	if !a.passkeysEnabled(w, r) {
		return
	}
	id := trimPathSegment(r.URL.Path, "/api/auth/passkeys/")
	// The ceremony endpoints share this prefix; they have their own routes.
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	if err := a.passkeys.Delete(r.Context(), userID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "auth.passkey.delete", "passkey", id, "", "")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePasskeyRegisterBegin(w http.ResponseWriter, r *http.Request) {
	if !a.passkeysEnabled(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	options, sessionID, err := a.passkeys.BeginRegistration(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"options":    options,
	})
}

func (a *API) handlePasskeyRegisterFinish(w http.ResponseWriter, r *http.Request) {
	if !a.passkeysEnabled(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	name := r.URL.Query().Get("name")
	cred, err := a.passkeys.FinishRegistration(r.Context(), userID, sessionID, name, r)
	if err != nil {
		if errors.Is(err, passkey.ErrUnknownSession) {
			writeError(w, r, http.StatusBadRequest, "unknown or expired session")
			return
		}
		writeError(w, r, http.StatusBadRequest, "attestation verification failed")
		return
	}
	a.recordAudit(r.Context(), "auth.passkey.register", "passkey", cred.ID, cred.Name, "")
	writeJSON(w, http.StatusCreated, cred)
}

func (a *API) handlePasskeyLoginBegin(w http.ResponseWriter, r *http.Request) {
	if !a.passkeysEnabled(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	options, sessionID, err := a.passkeys.BeginLogin(r.Context(), req.Email)
	if err != nil {
		// One generic answer: the endpoint must not reveal which emails exist.
		writeError(w, r, http.StatusBadRequest, "passkey login unavailable for this account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"options":    options,
	})
}

func (a *API) handlePasskeyLoginFinish(w http.ResponseWriter, r *http.Request) {
	if !a.passkeysEnabled(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	q := r.URL.Query()
	email, sessionID := q.Get("email"), q.Get("session_id")
	user, err := a.passkeys.FinishLogin(r.Context(), email, sessionID, r)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "passkey verification failed")
		return
	}
	token, err := auth.GenerateToken(user.ID, user.Role, user.Email, a.sessionTTL(r.Context()))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.recordAudit(auth.ContextWithUser(r.Context(), user.ID, user.Role, user.Email),
		"auth.passkey.login", "user", user.ID, user.Email, "")
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}
