package asset

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

func newTestService() *Service {
	return NewService(NewInMemory())
}

func TestCreateNormalizesAndDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	a, err := svc.Create(ctx, CreateInput{
		EmployeeName:  "  Dana Cole ",
		EmployeeEmail: "Dana.Cole@Example.Test",
		ManagerEmail:  "BOSS@Example.Test",
		AssetType:     "laptop",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.EmployeeEmail != "dana.cole@example.test" {
		t.Fatalf("email = %q; want lowercased", a.EmployeeEmail)
	}
	if a.ManagerEmail != "boss@example.test" {
		t.Fatalf("manager email = %q; want lowercased", a.ManagerEmail)
	}
	if a.EmployeeName != "Dana Cole" {
		t.Fatalf("name = %q; want trimmed", a.EmployeeName)
	}
	if a.Status != StatusActive {
		t.Fatalf("status = %q; want active", a.Status)
	}
	if a.RegisteredAt.IsZero() || a.ID == "" {
		t.Fatalf("missing defaults: %+v", a)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	if _, err := svc.Create(ctx, CreateInput{AssetType: "laptop"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing email err = %v; want ErrInvalidInput", err)
	}
	if _, err := svc.Create(ctx, CreateInput{EmployeeEmail: "a@b.test"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing type err = %v; want ErrInvalidInput", err)
	}
}

func TestStatusTransitionStampsTimestamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService().WithClock(func() time.Time { return now })

	a, err := svc.Create(ctx, CreateInput{EmployeeEmail: "dana@example.test", AssetType: "laptop"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	now = now.Add(24 * time.Hour)
	a, err = svc.Apply(ctx, a.ID, Update{Status: strptr(StatusReturned)})
	if err != nil {
		t.Fatalf("Apply returned: %v", err)
	}
	if a.Status != StatusReturned {
		t.Fatalf("status = %q; want returned", a.Status)
	}
	if a.ReturnedAt == nil || !a.ReturnedAt.Equal(now) {
		t.Fatalf("returned_at = %v; want %v", a.ReturnedAt, now)
	}

	now = now.Add(24 * time.Hour)
	a, err = svc.Apply(ctx, a.ID, Update{Status: strptr(StatusActive)})
	if err != nil {
		t.Fatalf("Apply active: %v", err)
	}
	if a.IssuedAt == nil || !a.IssuedAt.Equal(now) {
		t.Fatalf("issued_at = %v; want %v", a.IssuedAt, now)
	}
	if a.ReturnedAt != nil {
		t.Fatalf("returned_at survived re-issue: %v", a.ReturnedAt)
	}
}

func TestApplyRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	a, err := svc.Create(ctx, CreateInput{EmployeeEmail: "dana@example.test", AssetType: "laptop"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Apply(ctx, a.ID, Update{Status: strptr("vaporised")}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v; want ErrInvalidStatus", err)
	}
}

func TestApplyNotFound(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Apply(context.Background(), "missing", Update{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	seed := []CreateInput{
		{EmployeeEmail: "a@example.test", ManagerEmail: "m1@example.test", AssetType: "laptop", CompanyID: "co-1"},
		{EmployeeEmail: "b@example.test", ManagerEmail: "m1@example.test", AssetType: "phone", CompanyID: "co-1"},
		{EmployeeEmail: "c@example.test", ManagerEmail: "m2@example.test", AssetType: "laptop", CompanyID: "co-2"},
	}
	for _, in := range seed {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	byManager, err := svc.List(ctx, Filter{ManagerEmail: "m1@example.test"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byManager) != 2 {
		t.Fatalf("manager filter returned %d assets; want 2", len(byManager))
	}

	byEmployee, err := svc.List(ctx, Filter{EmployeeEmail: "c@example.test"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byEmployee) != 1 || byEmployee[0].CompanyID != "co-2" {
		t.Fatalf("employee filter returned %+v", byEmployee)
	}

	byCompany, err := svc.List(ctx, Filter{CompanyID: "co-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(byCompany) != 2 {
		t.Fatalf("company filter returned %d assets; want 2", len(byCompany))
	}
}

func TestSyncEmployee(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, CreateInput{EmployeeEmail: "dana@example.test", AssetType: "laptop"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := svc.Create(ctx, CreateInput{EmployeeEmail: "other@example.test", AssetType: "laptop"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.SyncEmployee(ctx, "Dana@Example.Test", "Dana Cole", "Boss", "boss@example.test"); err != nil {
		t.Fatalf("SyncEmployee: %v", err)
	}

	updated, err := svc.List(ctx, Filter{EmployeeEmail: "dana@example.test"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("got %d assets; want 2", len(updated))
	}
	for _, a := range updated {
		if a.EmployeeName != "Dana Cole" || a.ManagerEmail != "boss@example.test" {
			t.Fatalf("asset not synced: %+v", a)
		}
	}
	others, err := svc.List(ctx, Filter{EmployeeEmail: "other@example.test"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if others[0].EmployeeName == "Dana Cole" {
		t.Fatalf("unrelated asset was synced")
	}
}

func TestWriteCSV(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	if _, err := svc.Create(ctx, CreateInput{
		EmployeeName:  "Dana Cole",
		EmployeeEmail: "dana@example.test",
		AssetType:     "laptop",
		SerialNumber:  "SN-1",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	assets, err := svc.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, assets); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d; want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "employee_name,") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "dana@example.test") || !strings.Contains(lines[1], "SN-1") {
		t.Fatalf("row = %q", lines[1])
	}
}
