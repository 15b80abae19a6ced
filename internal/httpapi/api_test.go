package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kars.dev/internal/asset"
	"kars.dev/internal/attest"
	"kars.dev/internal/audit"
	"kars.dev/internal/auth"
	"kars.dev/internal/settings"
)

const testSecret = "httpapi-test-secret-0123456789"

func newTestAPI(t *testing.T) (*API, *attest.InMemory) {
	t.Helper()
	t.Setenv("KARS_AUTH_SECRET", testSecret)
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	authStore := auth.NewInMemory()
	authSvc := auth.NewService(authStore)
	assetSvc := asset.NewService(asset.NewInMemory())
	attestStore := attest.NewInMemory()
	attestSvc := attest.NewService(attestStore, authStore.Users(context.Background()))
	return New(Deps{
		Auth:      authSvc,
		Assets:    assetSvc,
		Attest:    attestSvc,
		Settings:  settings.NewService(settings.NewInMemory()),
		Audit:     audit.NewLog(audit.NewInMemory()),
		AccessTTL: time.Hour,
		Version:   "test",
	}), attestStore
}

func bearerFor(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateToken("user-"+role, role, role+"@example.test", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, a *API, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" || got["version"] != "test" {
		t.Fatalf("body = %v", got)
	}
}

func TestAuthRequiredOnProtectedPaths(t *testing.T) {
	a, _ := newTestAPI(t)
	paths := []string{
		"/api/assets",
		"/api/attestation/campaigns",
		"/api/attestation/my",
		"/api/reports/summary",
		"/api/admin/users",
		"/api/admin/audit",
	}
	for _, p := range paths {
		rec := doRequest(t, a, http.MethodGet, p, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token = %d; want 401", p, rec.Code)
		}
	}
}

func TestInvalidBearerToken(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/api/assets", "Bearer not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401", rec.Code)
	}
	rec = doRequest(t, a, http.MethodGet, "/api/assets", "Basic abc", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong scheme status = %d; want 401", rec.Code)
	}
}

func TestRoleGates(t *testing.T) {
	a, _ := newTestAPI(t)
	newAsset := map[string]string{
		"employee_name":  "Dana",
		"employee_email": "dana@example.test",
		"asset_type":     "laptop",
	}

	cases := []struct {
		name   string
		method string
		path   string
		role   string
		body   any
		want   int
	}{
		{"employee cannot create asset", http.MethodPost, "/api/assets", auth.RoleEmployee, newAsset, http.StatusForbidden},
		{"manager can create asset", http.MethodPost, "/api/assets", auth.RoleManager, newAsset, http.StatusCreated},
		{"coordinator can create asset", http.MethodPost, "/api/assets", auth.RoleCoordinator, newAsset, http.StatusCreated},
		{"employee cannot list campaigns", http.MethodGet, "/api/attestation/campaigns", auth.RoleEmployee, nil, http.StatusForbidden},
		{"manager can list campaigns", http.MethodGet, "/api/attestation/campaigns", auth.RoleManager, nil, http.StatusOK},
		{"employee cannot read reports", http.MethodGet, "/api/reports/summary", auth.RoleEmployee, nil, http.StatusForbidden},
		{"manager cannot list users", http.MethodGet, "/api/admin/users", auth.RoleManager, nil, http.StatusForbidden},
		{"admin can list users", http.MethodGet, "/api/admin/users", auth.RoleAdmin, nil, http.StatusOK},
		{"employee can list own records", http.MethodGet, "/api/attestation/my", auth.RoleEmployee, nil, http.StatusOK},
	}
	for _, tc := range cases {
		rec := doRequest(t, a, tc.method, tc.path, bearerFor(t, tc.role), tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d; want %d (body %s)", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestAssetDeleteAdminOnly(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodPost, "/api/assets", bearerFor(t, auth.RoleAdmin), map[string]string{
		"employee_name":  "Dana",
		"employee_email": "dana@example.test",
		"asset_type":     "laptop",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created asset.Asset
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(t, a, http.MethodDelete, "/api/assets/"+created.ID, bearerFor(t, auth.RoleManager), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("manager delete status = %d; want 403", rec.Code)
	}
	rec = doRequest(t, a, http.MethodDelete, "/api/assets/"+created.ID, bearerFor(t, auth.RoleAdmin), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete status = %d; want 204", rec.Code)
	}
}

func TestRegisterAndLoginFlow(t *testing.T) {
	a, _ := newTestAPI(t)

	rec := doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "first@example.test",
		"password": "long-enough-password",
		"name":     "First User",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var sess sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Token == "" {
		t.Fatalf("register returned empty token")
	}
	if sess.User.Role != auth.RoleAdmin {
		t.Fatalf("first user role = %q; want admin", sess.User.Role)
	}

	// The issued token authenticates follow-up calls.
	rec = doRequest(t, a, http.MethodGet, "/api/auth/me", "Bearer "+sess.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, a, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "first@example.test",
		"password": "long-enough-password",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, a, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "first@example.test",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d; want 401", rec.Code)
	}
}

func TestRegisterConvertsPendingInvite(t *testing.T) {
	a, attestStore := newTestAPI(t)
	ctx := context.Background()

	camp, err := a.attest.Create(ctx, attest.CreateInput{
		Name:      "Q3 audit",
		CreatedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := a.attest.Start(ctx, camp.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err = attestStore.Invites(ctx).Create(ctx, &attest.PendingInvite{
		ID:            "inv-1",
		CampaignID:    camp.ID,
		EmployeeEmail: "newhire@example.test",
		InviteToken:   "tok-1",
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	rec := doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "newhire@example.test",
		"password": "long-enough-password",
		"name":     "New Hire",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var sess sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}

	recs, err := a.attest.MyRecords(ctx, sess.User.ID)
	if err != nil {
		t.Fatalf("MyRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records after conversion = %d; want exactly 1", len(recs))
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", rec.Code)
	}
}

func TestPasskeysDisabledAnswers501(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/api/auth/passkeys", bearerFor(t, auth.RoleEmployee), nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d; want 501", rec.Code)
	}
}

func TestOIDCDisabledAnswers501(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/api/auth/oidc/login", "", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d; want 501", rec.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	a, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-fixed-1")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-fixed-1" {
		t.Fatalf("X-Request-Id = %q; want req-fixed-1", got)
	}

	rec = doRequest(t, a, http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("no generated request id")
	}
}

func TestSecurityHeaders(t *testing.T) {
	a, _ := newTestAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/healthz", "", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if csp := rec.Header().Get("Content-Security-Policy"); !strings.Contains(csp, "default-src") {
		t.Fatalf("Content-Security-Policy = %q", csp)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	a, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@b.c","password":"x","bogus":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
}

func TestRegistrationClosedWithoutInvite(t *testing.T) {
	a, attestStore := newTestAPI(t)
	ctx := context.Background()

	if err := a.settings.PutSystem(ctx, settings.SystemSettings{AllowSelfRegistration: false}); err != nil {
		t.Fatalf("put system settings: %v", err)
	}

	rec := doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "walkin@example.test",
		"password": "long-enough-password",
		"name":     "Walk In",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("register status = %d; want 403: %s", rec.Code, rec.Body.String())
	}

	// A valid campaign invite still admits the matching email.
	camp, err := a.attest.Create(ctx, attest.CreateInput{Name: "Q3 audit", CreatedBy: "admin-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := a.attest.Start(ctx, camp.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err = attestStore.Invites(ctx).Create(ctx, &attest.PendingInvite{
		ID:            "inv-closed-1",
		CampaignID:    camp.ID,
		EmployeeEmail: "invited@example.test",
		InviteToken:   "tok-closed-1",
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	rec = doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":        "invited@example.test",
		"password":     "long-enough-password",
		"name":         "Invited Hire",
		"invite_token": "tok-closed-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("invited register status = %d; want 201: %s", rec.Code, rec.Body.String())
	}
	var sess sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	recs, err := a.attest.MyRecords(ctx, sess.User.ID)
	if err != nil || len(recs) != 1 {
		t.Fatalf("records after token conversion = %v %v; want exactly 1", recs, err)
	}

	// The invite token belongs to one email; another address stays locked out.
	rec = doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":        "other@example.test",
		"password":     "long-enough-password",
		"name":         "Other",
		"invite_token": "tok-closed-1",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("mismatched invite status = %d; want 403", rec.Code)
	}
}

func TestLoginRequiresVerifiedEmailWhenConfigured(t *testing.T) {
	a, _ := newTestAPI(t)
	ctx := context.Background()

	rec := doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "pending@example.test",
		"password": "long-enough-password",
		"name":     "Pending",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}

	err := a.settings.PutSystem(ctx, settings.SystemSettings{
		AllowSelfRegistration:    true,
		RequireEmailVerification: true,
	})
	if err != nil {
		t.Fatalf("put system settings: %v", err)
	}

	login := map[string]string{
		"email":    "pending@example.test",
		"password": "long-enough-password",
	}
	rec = doRequest(t, a, http.MethodPost, "/api/auth/login", "", login)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified login status = %d; want 403: %s", rec.Code, rec.Body.String())
	}

	// Once the address is verified the same credentials work again.
	tok, err := a.auth.IssueToken(ctx, mustFindUser(t, a, "pending@example.test").ID, auth.PurposeEmailVerification)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := a.auth.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	rec = doRequest(t, a, http.MethodPost, "/api/auth/login", "", login)
	if rec.Code != http.StatusOK {
		t.Fatalf("verified login status = %d; want 200: %s", rec.Code, rec.Body.String())
	}
}

func mustFindUser(t *testing.T, a *API, email string) *auth.User {
	t.Helper()
	users, err := a.auth.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	for _, u := range users {
		if u.Email == email {
			return u
		}
	}
	t.Fatalf("user %s not found", email)
	return nil
}

func TestSessionTTLFromSystemSettings(t *testing.T) {
	a, _ := newTestAPI(t)
	ctx := context.Background()

	if err := a.settings.PutSystem(ctx, settings.SystemSettings{
		AllowSelfRegistration: true,
		SessionTTLMinutes:     5,
	}); err != nil {
		t.Fatalf("put system settings: %v", err)
	}

	rec := doRequest(t, a, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "short@example.test",
		"password": "long-enough-password",
		"name":     "Short Session",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	var sess sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := auth.ParseAndValidate(sess.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != 5*time.Minute {
		t.Fatalf("session ttl = %v; want 5m", ttl)
	}
}

func TestAdminCompanies(t *testing.T) {
	a, _ := newTestAPI(t)

	rec := doRequest(t, a, http.MethodPost, "/api/admin/companies", bearerFor(t, auth.RoleAdmin),
		map[string]string{"name": "Acme GmbH", "domain": "acme.example.test"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created auth.Company
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Managers may read the list for campaign targeting, employees may not.
	rec = doRequest(t, a, http.MethodGet, "/api/admin/companies", bearerFor(t, auth.RoleManager), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("manager list status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Acme GmbH") {
		t.Fatalf("list body = %s", rec.Body.String())
	}
	rec = doRequest(t, a, http.MethodGet, "/api/admin/companies", bearerFor(t, auth.RoleEmployee), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("employee list status = %d; want 403", rec.Code)
	}
	rec = doRequest(t, a, http.MethodPost, "/api/admin/companies", bearerFor(t, auth.RoleManager),
		map[string]string{"name": "Sneaky Inc"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("manager create status = %d; want 403", rec.Code)
	}

	rec = doRequest(t, a, http.MethodDelete, "/api/admin/companies/"+created.ID, bearerFor(t, auth.RoleAdmin), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, a, http.MethodDelete, "/api/admin/companies/"+created.ID, bearerFor(t, auth.RoleAdmin), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d; want 404", rec.Code)
	}
}

func TestCampaignRosterListsPendingInvites(t *testing.T) {
	a, attestStore := newTestAPI(t)
	ctx := context.Background()

	camp, err := a.attest.Create(ctx, attest.CreateInput{Name: "Q4 audit", CreatedBy: "admin-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := a.attest.Start(ctx, camp.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err = attestStore.Invites(ctx).Create(ctx, &attest.PendingInvite{
		ID:            "inv-roster-1",
		CampaignID:    camp.ID,
		EmployeeEmail: "ghost@example.test",
		InviteToken:   "tok-roster-1",
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	rec := doRequest(t, a, http.MethodGet, "/api/attestation/campaigns/"+camp.ID+"/records",
		bearerFor(t, auth.RoleManager), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("roster status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Items          []attest.RecordView     `json:"items"`
		PendingInvites []*attest.PendingInvite `json:"pending_invites"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.PendingInvites) != 1 || body.PendingInvites[0].EmployeeEmail != "ghost@example.test" {
		t.Fatalf("pending invites = %+v", body.PendingInvites)
	}
	if strings.Contains(rec.Body.String(), "tok-roster-1") {
		t.Fatalf("invite token must not be serialized")
	}
}
