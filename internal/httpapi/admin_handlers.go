package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kars.dev/internal/audit"
	"kars.dev/internal/auth"
	"kars.dev/internal/obs"
	"kars.dev/internal/settings"
)

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if !a.requireRole(w, r, auth.RoleAdmin) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

type adminUserUpdateRequest struct {
	Name         *string `json:"name"`
	Role         *string `json:"role"`
	ManagerName  *string `json:"manager_name"`
	ManagerEmail *string `json:"manager_email"`
	CompanyID    *string `json:"company_id"`
	Status       *string `json:"status"`
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if !a.requireRole(w, r, auth.RoleAdmin) {
		return
	}
	id := trimPathSegment(r.URL.Path, "/api/admin/users/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		u, err := a.auth.GetUser(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	case http.MethodPut:
		var req adminUserUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u, err := a.auth.UpdateUser(r.Context(), id, auth.UserUpdate{
			Name:         req.Name,
			Role:         req.Role,
			ManagerName:  req.ManagerName,
			ManagerEmail: req.ManagerEmail,
			CompanyID:    req.CompanyID,
			Status:       req.Status,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "admin.user.update", "user", u.ID, u.Email, "")
		writeJSON(w, http.StatusOK, u)
	case http.MethodDelete:
		callerID, _ := auth.UserIDFromContext(r.Context())
		if callerID == id {
			writeError(w, r, http.StatusBadRequest, "cannot delete your own account")
			return
		}
		if err := a.auth.DeleteUser(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "admin.user.delete", "user", id, "", "")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleCompaniesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		// Managers need the list to target campaigns at a company.
		if !a.requireManage(w, r) {
			return
		}
		companies, err := a.auth.ListCompanies(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": companies})
	case http.MethodPost:
		if !a.requireRole(w, r, auth.RoleAdmin) {
			return
		}
		var req struct {
			Name   string `json:"name"`
			Domain string `json:"domain"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.auth.CreateCompany(r.Context(), req.Name, req.Domain)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "admin.company.create", "company", c.ID, c.Name, "")
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCompanyResource(w http.ResponseWriter, r *http.Request) {
	if !a.requireRole(w, r, auth.RoleAdmin) {
		return
	}
	id := trimPathSegment(r.URL.Path, "/api/admin/companies/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.auth.DeleteCompany(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "admin.company.delete", "company", id, "", "")
	w.WriteHeader(http.StatusNoContent)
}

// handleSettings routes /api/admin/settings/{key} for the known keys.
func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !a.requireRole(w, r, auth.RoleAdmin) {
		return
	}
	key := trimPathSegment(r.URL.Path, "/api/admin/settings/")
	switch key {
	case settings.KeySMTP, settings.KeyBranding, settings.KeySystem:
	default:
		writeError(w, r, http.StatusNotFound, "unknown settings key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		raw, err := a.settings.GetRaw(r.Context(), key)
		if err != nil {
			if errors.Is(err, settings.ErrNotFound) {
				writeJSON(w, http.StatusOK, map[string]any{})
				return
			}
			handleDomainError(w, r, err)
			return
		}
		if key == settings.KeySMTP {
			raw = redactSMTPPassword(raw)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	case http.MethodPut:
		var raw json.RawMessage
		if err := decodeJSON(w, r, &raw); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.settings.PutRaw(r.Context(), key, raw); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		a.recordAudit(r.Context(), "admin.settings.update", "settings", key, key, "")
		writeJSON(w, http.StatusOK, map[string]any{"updated": key})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// redactSMTPPassword strips the stored password before it leaves the API.
func redactSMTPPassword(raw json.RawMessage) json.RawMessage {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw
	}
	delete(doc, "password")
	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}

func (a *API) handleSMTPTest(w http.ResponseWriter, r *http.Request) {
	if !a.requireRole(w, r, auth.RoleAdmin) {
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
	if req.Email == "" {
		if email, ok := auth.EmailFromContext(r.Context()); ok {
			req.Email = email
		}
	}
	if a.notifier == nil {
		writeError(w, r, http.StatusBadRequest, "mail is not configured")
		return
	}
	if err := a.notifier.SendTest(r.Context(), req.Email); err != nil {
		writeError(w, r, http.StatusBadGateway, fmt.Sprintf("test send failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (a *API) auditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), 0, 1000)
	if err != nil {
		return audit.Filter{}, err
	}
	f := audit.Filter{
		EntityType:  q.Get("entity_type"),
		Action:      q.Get("action"),
		PerformedBy: q.Get("performed_by"),
		Limit:       limit,
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, errors.New("from must be RFC 3339")
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, errors.New("to must be RFC 3339")
		}
		f.To = t
	}
	return f, nil
}

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if !a.requireManage(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	f, err := a.auditFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.audit.Query(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if !a.requireManage(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	f, err := a.auditFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.audit.Query(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	if err := audit.WriteCSV(w, entries); err != nil {
		obs.LogError("audit csv export failed", err, nil)
	}
}

// handleAuditWipe is the danger zone: admin-only bulk delete, itself audited.
func (a *API) handleAuditWipe(w http.ResponseWriter, r *http.Request) {
	if !a.requireRole(w, r, auth.RoleAdmin) {
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Confirm != "DELETE" {
		writeError(w, r, http.StatusBadRequest, `confirmation phrase "DELETE" is required`)
		return
	}
	n, err := a.audit.Wipe(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "admin.audit.wipe", "audit_log", "", "", fmt.Sprintf("%d entries removed", n))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
