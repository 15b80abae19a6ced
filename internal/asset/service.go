package asset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"kars.dev/internal/ids"
)

// Store persists assets.
type Store interface {
	Create(ctx context.Context, a *Asset) error
	Find(ctx context.Context, id string) (*Asset, error)
	List(ctx context.Context, f Filter) ([]*Asset, error)
	Update(ctx context.Context, a *Asset) error
	Delete(ctx context.Context, id string) error
}

// Service wraps the store with validation and status bookkeeping.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// CreateInput carries the registration payload.
type CreateInput struct {
	EmployeeName  string
	EmployeeEmail string
	ManagerName   string
	ManagerEmail  string
	CompanyID     string
	AssetType     string
	Make          string
	Model         string
	SerialNumber  string
	AssetTag      string
}

// Create registers a new asset in active status.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Asset, error) {
	email := strings.TrimSpace(strings.ToLower(in.EmployeeEmail))
	if email == "" {
		return nil, fmt.Errorf("%w: employee_email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.AssetType) == "" {
		return nil, fmt.Errorf("%w: asset_type is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	a := &Asset{
		ID:            ids.New(),
		EmployeeName:  strings.TrimSpace(in.EmployeeName),
		EmployeeEmail: email,
		ManagerName:   strings.TrimSpace(in.ManagerName),
		ManagerEmail:  strings.TrimSpace(strings.ToLower(in.ManagerEmail)),
		CompanyID:     strings.TrimSpace(in.CompanyID),
		AssetType:     strings.TrimSpace(in.AssetType),
		Make:          strings.TrimSpace(in.Make),
		Model:         strings.TrimSpace(in.Model),
		SerialNumber:  strings.TrimSpace(in.SerialNumber),
		AssetTag:      strings.TrimSpace(in.AssetTag),
		Status:        StatusActive,
		RegisteredAt:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, id string) (*Asset, error) {
	return s.store.Find(ctx, id)
}

// List returns assets matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]*Asset, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 500
	}
	return s.store.List(ctx, f)
}

// Apply updates an asset. Status changes stamp issued_at/returned_at.
func (s *Service) Apply(ctx context.Context, id string, upd Update) (*Asset, error) {
	a, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setStr(&a.EmployeeName, upd.EmployeeName)
	if upd.EmployeeEmail != nil {
		a.EmployeeEmail = strings.TrimSpace(strings.ToLower(*upd.EmployeeEmail))
	}
	setStr(&a.ManagerName, upd.ManagerName)
	if upd.ManagerEmail != nil {
		a.ManagerEmail = strings.TrimSpace(strings.ToLower(*upd.ManagerEmail))
	}
	setStr(&a.CompanyID, upd.CompanyID)
	setStr(&a.AssetType, upd.AssetType)
	setStr(&a.Make, upd.Make)
	setStr(&a.Model, upd.Model)
	setStr(&a.SerialNumber, upd.SerialNumber)
	setStr(&a.AssetTag, upd.AssetTag)

	if upd.Status != nil && *upd.Status != a.Status {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		if !ValidStatus(status) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
		switch status {
		case StatusActive:
			if a.IssuedAt == nil {
				a.IssuedAt = &now
			}
			a.ReturnedAt = nil
		case StatusReturned:
			a.ReturnedAt = &now
		}
		a.Status = status
	}

	a.UpdatedAt = now
	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an asset.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// SyncEmployee updates denormalized employee identity on all assets held by
// the address. Best-effort callers log failures without aborting.
func (s *Service) SyncEmployee(ctx context.Context, email, name, managerName, managerEmail string) error {
	assets, err := s.store.List(ctx, Filter{EmployeeEmail: strings.ToLower(email), Limit: 1000})
	if err != nil {
		return err
	}
	now := s.now().UTC()
	for _, a := range assets {
		a.EmployeeName = name
		a.ManagerName = managerName
		a.ManagerEmail = strings.ToLower(managerEmail)
		a.UpdatedAt = now
		if err := s.store.Update(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV streams assets as CSV for export.
func WriteCSV(w io.Writer, assets []*Asset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"employee_name", "employee_email", "manager_email", "asset_type", "make", "model", "serial_number", "asset_tag", "status", "registered_at"}); err != nil {
		return err
	}
	for _, a := range assets {
		row := []string{
			a.EmployeeName, a.EmployeeEmail, a.ManagerEmail,
			a.AssetType, a.Make, a.Model, a.SerialNumber, a.AssetTag,
			a.Status, a.RegisteredAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
