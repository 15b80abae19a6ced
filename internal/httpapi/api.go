// Package httpapi is the REST surface: JSON over net/http, role-gated.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"kars.dev/internal/asset"
	"kars.dev/internal/attest"
	"kars.dev/internal/audit"
	"kars.dev/internal/auth"
	"kars.dev/internal/mail"
	"kars.dev/internal/obs"
	"kars.dev/internal/oidc"
	"kars.dev/internal/passkey"
	"kars.dev/internal/report"
	"kars.dev/internal/settings"
)

// ReadyProbe pings the database for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps wires the services the API exposes. Reports, OIDC and passkeys are
// optional; their routes answer 404 / 501 when absent.
type Deps struct {
	Auth     *auth.Service
	Assets   *asset.Service
	Attest   *attest.Service
	Reports  *report.Service
	Settings *settings.Service
	Audit    *audit.Log
	Notifier *mail.Notifier
	OIDC     *oidc.Service
	Passkeys *passkey.Service

	AccessTTL   time.Duration
	FrontendURL string
	Version     string
	ReadyProbe  ReadyProbe

	// Requests per second and burst per client IP; zero disables limiting.
	RateLimitPerSecond int
	RateLimitBurst     int
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	auth        *auth.Service
	assets      *asset.Service
	attest      *attest.Service
	reports     *report.Service
	settings    *settings.Service
	audit       *audit.Log
	notifier    *mail.Notifier
	oidc        *oidc.Service
	passkeys    *passkey.Service
	accessTTL   time.Duration
	frontendURL string
	version     string
	readyProbe  ReadyProbe
	ratePerSec  int
	rateBurst   int
}

func New(d Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		auth:        d.Auth,
		assets:      d.Assets,
		attest:      d.Attest,
		reports:     d.Reports,
		settings:    d.Settings,
		audit:       d.Audit,
		notifier:    d.Notifier,
		oidc:        d.OIDC,
		passkeys:    d.Passkeys,
		accessTTL:   d.AccessTTL,
		frontendURL: d.FrontendURL,
		version:     d.Version,
		readyProbe:  d.ReadyProbe,
		ratePerSec:  d.RateLimitPerSecond,
		rateBurst:   d.RateLimitBurst,
	}
	if a.accessTTL <= 0 {
		a.accessTTL = 24 * time.Hour
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)
	a.mux.HandleFunc("/api/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/api/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/api/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/api/auth/mfa/setup", a.handleMFASetup)
	a.mux.HandleFunc("/api/auth/mfa/enable", a.handleMFAEnable)
	a.mux.HandleFunc("/api/auth/mfa/disable", a.handleMFADisable)
	a.mux.HandleFunc("/api/auth/passkeys", a.handlePasskeysCollection)
	a.mux.HandleFunc("/api/auth/passkeys/", a.handlePasskeyResource)
	a.mux.HandleFunc("/api/auth/passkeys/register/begin", a.handlePasskeyRegisterBegin)
	a.mux.HandleFunc("/api/auth/passkeys/register/finish", a.handlePasskeyRegisterFinish)
	a.mux.HandleFunc("/api/auth/passkeys/login/begin", a.handlePasskeyLoginBegin)
	a.mux.HandleFunc("/api/auth/passkeys/login/finish", a.handlePasskeyLoginFinish)
	a.mux.HandleFunc("/api/auth/oidc/login", a.handleOIDCLogin)
	a.mux.HandleFunc("/api/auth/oidc/callback", a.handleOIDCCallback)

	// assets
	a.mux.HandleFunc("/api/assets", a.handleAssetsCollection)
	a.mux.HandleFunc("/api/assets/export", a.handleAssetsExport)
	a.mux.HandleFunc("/api/assets/", a.handleAssetResource)

	// attestation
	a.mux.HandleFunc("/api/attestation/campaigns", a.handleCampaignsCollection)
	a.mux.HandleFunc("/api/attestation/campaigns/", a.handleCampaignResource)
	a.mux.HandleFunc("/api/attestation/records/", a.handleRecordResource)
	a.mux.HandleFunc("/api/attestation/my", a.handleMyRecords)

	// reports
	a.mux.HandleFunc("/api/reports/summary", a.handleReportSummary)
	a.mux.HandleFunc("/api/reports/statistics", a.handleReportStatistics)
	a.mux.HandleFunc("/api/reports/compliance", a.handleReportCompliance)
	a.mux.HandleFunc("/api/reports/trends", a.handleReportTrends)

	// admin
	a.mux.HandleFunc("/api/admin/users", a.handleUsersCollection)
	a.mux.HandleFunc("/api/admin/users/", a.handleUserResource)
	a.mux.HandleFunc("/api/admin/companies", a.handleCompaniesCollection)
	a.mux.HandleFunc("/api/admin/companies/", a.handleCompanyResource)
	a.mux.HandleFunc("/api/admin/settings/", a.handleSettings)
	a.mux.HandleFunc("/api/admin/settings/smtp/test", a.handleSMTPTest)
	a.mux.HandleFunc("/api/admin/audit", a.handleAuditQuery)
	a.mux.HandleFunc("/api/admin/audit/export", a.handleAuditExport)
	a.mux.HandleFunc("/api/admin/danger-zone/audit", a.handleAuditWipe)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware-wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.frontendURL)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "kars-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// recordAudit writes a best-effort audit entry.
func (a *API) recordAudit(ctx context.Context, action, entityType, entityID, entityName, details string) {
	if a.audit == nil {
		return
	}
	err := a.audit.Record(ctx, audit.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    details,
	})
	if err != nil {
		obs.LogError("audit append failed", err, map[string]any{"action": action})
	}
}
