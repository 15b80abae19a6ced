package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"kars.dev/internal/asset"
	"kars.dev/internal/auth"
	"kars.dev/internal/obs"
)

type createAssetRequest struct {
	EmployeeName  string `json:"employee_name"`
	EmployeeEmail string `json:"employee_email"`
	ManagerName   string `json:"manager_name"`
	ManagerEmail  string `json:"manager_email"`
	CompanyID     string `json:"company_id"`
	AssetType     string `json:"asset_type"`
	Make          string `json:"make"`
	Model         string `json:"model"`
	SerialNumber  string `json:"serial_number"`
	AssetTag      string `json:"asset_tag"`
}

type updateAssetRequest struct {
	EmployeeName  *string `json:"employee_name"`
	EmployeeEmail *string `json:"employee_email"`
	ManagerName   *string `json:"manager_name"`
	ManagerEmail  *string `json:"manager_email"`
	CompanyID     *string `json:"company_id"`
	AssetType     *string `json:"asset_type"`
	Make          *string `json:"make"`
	Model         *string `json:"model"`
	SerialNumber  *string `json:"serial_number"`
	AssetTag      *string `json:"asset_tag"`
	Status        *string `json:"status"`
}

// scopeFilter narrows a listing to what the caller may see: admins and
// coordinators see everything, managers their reports, employees themselves.
func (a *API) scopeFilter(r *http.Request, f *asset.Filter) {
	role, _ := auth.RoleFromContext(r.Context())
	email, _ := auth.EmailFromContext(r.Context())
	switch role {
	case auth.RoleAdmin, auth.RoleCoordinator:
	case auth.RoleManager:
		f.ManagerEmail = email
	default:
		f.EmployeeEmail = email
	}
}

func (a *API) listFilter(r *http.Request) (asset.Filter, error) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), 0, 1000)
	if err != nil {
		return asset.Filter{}, err
	}
	f := asset.Filter{
		Status:    q.Get("status"),
		CompanyID: q.Get("company_id"),
		Limit:     limit,
	}
	a.scopeFilter(r, &f)
	return f, nil
}

func (a *API) handleAssetsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		f, err := a.listFilter(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assets, err := a.assets.List(r.Context(), f)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": assets})
	case http.MethodPost:
		if !a.requireManage(w, r) {
			return
		}
		var req createAssetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.assets.Create(r.Context(), asset.CreateInput{
			EmployeeName:  req.EmployeeName,
			EmployeeEmail: req.EmployeeEmail,
			ManagerName:   req.ManagerName,
			ManagerEmail:  req.ManagerEmail,
			CompanyID:     req.CompanyID,
			AssetType:     req.AssetType,
			Make:          req.Make,
			Model:         req.Model,
			SerialNumber:  req.SerialNumber,
			AssetTag:      req.AssetTag,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "asset.create", "asset", created.ID, created.AssetTag,
			fmt.Sprintf("%s for %s", created.AssetType, created.EmployeeEmail))
		w.Header().Set("Location", "/api/assets/"+created.ID)
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	id := trimPathSegment(r.URL.Path, "/api/assets/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		found, err := a.assets.Get(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if !a.mayViewAsset(r, found) {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		writeJSON(w, http.StatusOK, found)
	case http.MethodPut:
		if !a.requireManage(w, r) {
			return
		}
		var req updateAssetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.assets.Apply(r.Context(), id, asset.Update{
			EmployeeName:  req.EmployeeName,
			EmployeeEmail: req.EmployeeEmail,
			ManagerName:   req.ManagerName,
			ManagerEmail:  req.ManagerEmail,
			CompanyID:     req.CompanyID,
			AssetType:     req.AssetType,
			Make:          req.Make,
			Model:         req.Model,
			SerialNumber:  req.SerialNumber,
			AssetTag:      req.AssetTag,
			Status:        req.Status,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "asset.update", "asset", updated.ID, updated.AssetTag, "")
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !a.requireRole(w, r, auth.RoleAdmin) {
			return
		}
		if err := a.assets.Delete(r.Context(), id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		a.recordAudit(r.Context(), "asset.delete", "asset", id, "", "")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) mayViewAsset(r *http.Request, found *asset.Asset) bool {
	role, _ := auth.RoleFromContext(r.Context())
	email, _ := auth.EmailFromContext(r.Context())
	switch role {
	case auth.RoleAdmin, auth.RoleCoordinator:
		return true
	case auth.RoleManager:
		return found.ManagerEmail == email || found.EmployeeEmail == email
	default:
		return found.EmployeeEmail == email
	}
}

func (a *API) handleAssetsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireManage(w, r) {
		return
	}
	f, err := a.listFilter(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assets, err := a.assets.List(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="assets.csv"`)
	if err := asset.WriteCSV(w, assets); err != nil {
		obs.LogError("asset csv export failed", err, nil)
		return
	}
	a.recordAudit(r.Context(), "asset.export", "asset", "", "", fmt.Sprintf("%d rows", len(assets)))
}
