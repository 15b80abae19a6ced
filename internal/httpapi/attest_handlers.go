package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"kars.dev/internal/attest"
	"kars.dev/internal/auth"
	"kars.dev/internal/obs"
)

type campaignRequest struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	ReminderDays   int        `json:"reminder_days"`
	EscalationDays int        `json:"escalation_days"`
	TargetType     string     `json:"target_type"`
	TargetIDs      []string   `json:"target_ids"`
}

type campaignUpdateRequest struct {
	Name           *string    `json:"name"`
	Description    *string    `json:"description"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	ReminderDays   *int       `json:"reminder_days"`
	EscalationDays *int       `json:"escalation_days"`
	TargetType     *string    `json:"target_type"`
	TargetIDs      []string   `json:"target_ids"`
}

func (a *API) handleCampaignsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireManage(w, r) {
			return
		}
		campaigns, err := a.attest.List(r.Context())
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": campaigns})
	case http.MethodPost:
		if !a.requireManage(w, r) {
			return
		}
		var req campaignRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		userID, _ := auth.UserIDFromContext(r.Context())
		created, err := a.attest.Create(r.Context(), attest.CreateInput{
			Name:           req.Name,
			Description:    req.Description,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			ReminderDays:   req.ReminderDays,
			EscalationDays: req.EscalationDays,
			TargetType:     req.TargetType,
			TargetIDs:      req.TargetIDs,
			CreatedBy:      userID,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.campaign.create", "campaign", created.ID, created.Name, "")
		w.Header().Set("Location", "/api/attestation/campaigns/"+created.ID)
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleCampaignResource routes /api/attestation/campaigns/{id}[/action].
func (a *API) handleCampaignResource(w http.ResponseWriter, r *http.Request) {
	if !a.requireManage(w, r) {
		return
	}
	rest := trimPathSegment(r.URL.Path, "/api/attestation/campaigns/")
	if rest == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, action, _ := strings.Cut(rest, "/")
	if strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch action {
	case "":
		a.campaignCRUD(w, r, id)
	case "start":
		a.campaignAction(w, r, id, "start")
	case "cancel":
		a.campaignAction(w, r, id, "cancel")
	case "complete":
		a.campaignAction(w, r, id, "complete")
	case "records":
		a.campaignRoster(w, r, id)
	case "remind":
		a.campaignBulkRemind(w, r, id)
	case "export":
		a.campaignExport(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) campaignCRUD(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		c, err := a.attest.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPut:
		var req campaignUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.attest.Update(r.Context(), id, attest.UpdateInput{
			Name:           req.Name,
			Description:    req.Description,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			ReminderDays:   req.ReminderDays,
			EscalationDays: req.EscalationDays,
			TargetType:     req.TargetType,
			TargetIDs:      req.TargetIDs,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.campaign.update", "campaign", c.ID, c.Name, "")
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		if !a.requireRole(w, r, auth.RoleAdmin) {
			return
		}
		if err := a.attest.Delete(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.campaign.delete", "campaign", id, "", "")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) campaignAction(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	switch action {
	case "start":
		result, err := a.attest.Start(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.campaign.start", "campaign", id, result.Campaign.Name,
			fmt.Sprintf("%d records, %d invites", result.RecordsCreated, result.InvitesCreated))
		writeJSON(w, http.StatusOK, result)
	case "cancel":
		c, err := a.attest.Cancel(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.campaign.cancel", "campaign", c.ID, c.Name, "")
		writeJSON(w, http.StatusOK, c)
	case "complete":
		c, err := a.attest.Complete(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.campaign.complete", "campaign", c.ID, c.Name, "")
		writeJSON(w, http.StatusOK, c)
	}
}

func (a *API) campaignRoster(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	views, err := a.attest.Roster(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	invites, err := a.attest.PendingInvites(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":           views,
		"pending_invites": invites,
	})
}

func (a *API) campaignBulkRemind(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		RecordIDs []string `json:"record_ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		// An empty body means "remind everyone open".
		req.RecordIDs = nil
	}
	result, err := a.attest.BulkRemind(r.Context(), id, req.RecordIDs)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.recordAudit(r.Context(), "attestation.campaign.remind", "campaign", id, "",
		fmt.Sprintf("%d sent, %d failed", result.Sent, result.Failed))
	writeJSON(w, http.StatusOK, result)
}

func (a *API) campaignExport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	c, err := a.attest.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	views, err := a.attest.Roster(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attestation.csv"`)
	if err := attest.WriteRosterCSV(w, c, views); err != nil {
		obs.LogError("attestation csv export failed", err, map[string]any{"campaign_id": id})
		return
	}
	a.recordAudit(r.Context(), "attestation.campaign.export", "campaign", id, c.Name, "")
}

// handleRecordResource routes /api/attestation/records/{id}/{action}.
func (a *API) handleRecordResource(w http.ResponseWriter, r *http.Request) {
	rest := trimPathSegment(r.URL.Path, "/api/attestation/records/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	switch action {
	case "start":
		userID, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		rec, err := a.attest.MarkInProgress(r.Context(), id, userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case "complete":
		userID, ok := a.currentUser(w, r)
		if !ok {
			return
		}
		// Management roles may complete on a user's behalf.
		role, _ := auth.RoleFromContext(r.Context())
		if role == auth.RoleAdmin || role == auth.RoleManager || role == auth.RoleCoordinator {
			userID = ""
		}
		rec, err := a.attest.CompleteRecord(r.Context(), id, userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.record.complete", "record", rec.ID, "", "")
		writeJSON(w, http.StatusOK, rec)
	case "remind":
		if !a.requireManage(w, r) {
			return
		}
		rec, err := a.attest.Remind(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "attestation.record.remind", "record", rec.ID, "", "")
		writeJSON(w, http.StatusOK, rec)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleMyRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	views, err := a.attest.MyRecords(r.Context(), userID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}
