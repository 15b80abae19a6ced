package asset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"kars.dev/internal/ids"
	"kars.dev/internal/store"
)

var _ Store = (*SQLStore)(nil)

// SQLStore persists assets in the assets table.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

const assetColumns = `id, employee_name, employee_email, manager_name, manager_email, company_id,
	asset_type, make, model, serial_number, asset_tag, status,
	registered_at, issued_at, returned_at, created_at, updated_at`

func (s *SQLStore) Create(ctx context.Context, a *Asset) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into assets(`+assetColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`),
		a.ID, a.EmployeeName, a.EmployeeEmail, a.ManagerName, a.ManagerEmail, a.CompanyID,
		a.AssetType, a.Make, a.Model, a.SerialNumber, a.AssetTag, a.Status,
		a.RegisteredAt, a.IssuedAt, a.ReturnedAt, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func scanAsset(row interface{ Scan(...any) error }) (*Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.EmployeeName, &a.EmployeeEmail, &a.ManagerName, &a.ManagerEmail,
		&a.CompanyID, &a.AssetType, &a.Make, &a.Model, &a.SerialNumber, &a.AssetTag,
		&a.Status, &a.RegisteredAt, &a.IssuedAt, &a.ReturnedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *SQLStore) Find(ctx context.Context, id string) (*Asset, error) {
	return scanAsset(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+assetColumns+` from assets where id=$1`), id))
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]*Asset, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.CompanyID != "" {
		conds = append(conds, "company_id = "+arg(f.CompanyID))
	}
	if f.EmployeeEmail != "" {
		conds = append(conds, "employee_email = "+arg(f.EmployeeEmail))
	}
	if f.ManagerEmail != "" {
		conds = append(conds, "manager_email = "+arg(f.ManagerEmail))
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	query := `select ` + assetColumns + ` from assets`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by created_at desc limit " + arg(limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (s *SQLStore) Update(ctx context.Context, a *Asset) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update assets set employee_name=$1, employee_email=$2, manager_name=$3, manager_email=$4,
		 company_id=$5, asset_type=$6, make=$7, model=$8, serial_number=$9, asset_tag=$10,
		 status=$11, issued_at=$12, returned_at=$13, updated_at=$14 where id=$15`),
		a.EmployeeName, a.EmployeeEmail, a.ManagerName, a.ManagerEmail,
		a.CompanyID, a.AssetType, a.Make, a.Model, a.SerialNumber, a.AssetTag,
		a.Status, a.IssuedAt, a.ReturnedAt, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`delete from assets where id=$1`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
