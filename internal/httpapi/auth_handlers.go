package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"kars.dev/internal/auth"
	"kars.dev/internal/obs"
)

type registerRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	ManagerName  string `json:"manager_name"`
	ManagerEmail string `json:"manager_email"`
	CompanyID    string `json:"company_id"`
	InviteToken  string `json:"invite_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if sys := a.systemSettings(r.Context()); !sys.AllowSelfRegistration {
		if !a.inviteAdmitsRegistration(r.Context(), req.InviteToken, req.Email) {
			writeError(w, r, http.StatusForbidden, "self registration is disabled")
			return
		}
	}

	user, err := a.auth.Register(r.Context(), auth.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		ManagerName:  req.ManagerName,
		ManagerEmail: req.ManagerEmail,
		CompanyID:    req.CompanyID,
	})
	if err != nil {
		if errors.Is(err, auth.ErrConflict) {
			writeError(w, r, http.StatusConflict, "email is already registered")
			return
		}
		handleDomainError(w, r, err)
		return
	}

	// Everything past this point is best effort: the account exists.
	if a.notifier != nil {
		if tok, err := a.auth.IssueToken(r.Context(), user.ID, auth.PurposeEmailVerification); err != nil {
			obs.LogError("verification token issue failed", err, map[string]any{"user_id": user.ID})
		} else if err := a.notifier.SendVerification(r.Context(), user.Email, tok); err != nil {
			obs.LogError("verification mail failed", err, map[string]any{"user_id": user.ID})
		}
	}
	if a.attest != nil && req.InviteToken != "" {
		if _, err := a.attest.ConvertInviteByToken(r.Context(), req.InviteToken, user.ID); err != nil {
			obs.LogError("invite token conversion failed", err, map[string]any{"user_id": user.ID})
		}
	}
	if a.attest != nil {
		if n, err := a.attest.ConvertPendingInvites(r.Context(), user.Email, user.ID); err != nil {
			obs.LogError("invite conversion failed", err, map[string]any{"user_id": user.ID})
		} else if n > 0 {
			a.recordAudit(r.Context(), "attestation.invite.convert", "user", user.ID, user.Email, "")
		}
	}
	a.recordAudit(r.Context(), "auth.register", "user", user.ID, user.Email, "")

	token, err := auth.GenerateToken(user.ID, user.Role, user.Email, a.sessionTTL(r.Context()))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

// inviteAdmitsRegistration reports whether an unspent campaign invite grants
// the caller an account while self registration is switched off.
func (a *API) inviteAdmitsRegistration(ctx context.Context, token, email string) bool {
	if a.attest == nil || strings.TrimSpace(token) == "" {
		return false
	}
	inv, err := a.attest.InviteByToken(ctx, token)
	if err != nil || inv.RegisteredAt != nil {
		return false
	}
	return inv.EmployeeEmail == strings.ToLower(strings.TrimSpace(email))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.auth.Authenticate(r.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMFARequired):
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":        "mfa code required",
				"mfa_required": true,
			})
		case errors.Is(err, auth.ErrInvalidCode):
			writeError(w, r, http.StatusUnauthorized, "invalid mfa code")
		default:
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		}
		return
	}

	if sys := a.systemSettings(r.Context()); sys.RequireEmailVerification && !user.EmailVerified {
		writeError(w, r, http.StatusForbidden, "email address not verified")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, user.Email, a.sessionTTL(r.Context()))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	a.recordAudit(auth.ContextWithUser(r.Context(), user.ID, user.Role, user.Email),
		"auth.login", "user", user.ID, user.Email, "")
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

type profileUpdateRequest struct {
	Name         *string `json:"name"`
	ManagerName  *string `json:"manager_name"`
	ManagerEmail *string `json:"manager_email"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		user, err := a.auth.GetUser(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req profileUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.UpdateUser(r.Context(), userID, auth.UserUpdate{
			Name:         req.Name,
			ManagerName:  req.ManagerName,
			ManagerEmail: req.ManagerEmail,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		// Keep denormalized asset rows in step; a miss here is not fatal.
		if a.assets != nil {
			if err := a.assets.SyncEmployee(r.Context(), user.Email, user.Name, user.ManagerName, user.ManagerEmail); err != nil {
				obs.LogError("asset employee sync failed", err, map[string]any{"user_id": user.ID})
			}
		}
		a.recordAudit(r.Context(), "auth.profile.update", "user", user.ID, user.Email, "")
		writeJSON(w, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, r, http.StatusBadRequest, "invalid or expired token")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "auth.email.verify", "user", user.ID, user.Email, "")
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
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

	user, token, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err == nil && a.notifier != nil {
		if merr := a.notifier.SendPasswordReset(r.Context(), user.Email, token); merr != nil {
			obs.LogError("password reset mail failed", merr, map[string]any{"user_id": user.ID})
		}
	} else if err != nil && !errors.Is(err, auth.ErrNotFound) {
		obs.LogError("password reset request failed", err, nil)
	}

	// Always 200 so the endpoint cannot be used for account enumeration.
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "if the address is registered, a reset link has been sent",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, r, http.StatusBadRequest, "invalid or expired token")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}

func (a *API) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	secret, otpauthURL, err := a.auth.SetupMFA(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":      secret,
		"otpauth_url": otpauthURL,
	})
}

func (a *API) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.EnableMFA(r.Context(), userID, req.Code); err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			writeError(w, r, http.StatusBadRequest, "invalid mfa code")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "auth.mfa.enable", "user", userID, "", "")
	writeJSON(w, http.StatusOK, map[string]any{"mfa_enabled": true})
}

func (a *API) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.DisableMFA(r.Context(), userID, req.Password); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid password")
			return
		}
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "auth.mfa.disable", "user", userID, "", "")
	writeJSON(w, http.StatusOK, map[string]any{"mfa_enabled": false})
}

func trimPathSegment(path, prefix string) string {
	return strings.Trim(strings.TrimPrefix(path, prefix), "/")
}
