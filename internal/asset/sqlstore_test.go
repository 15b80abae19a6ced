package asset

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"kars.dev/internal/store"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(store.Wrap(db, store.Postgres)), mock
}

func assetRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "employee_name", "employee_email", "manager_name", "manager_email", "company_id",
		"asset_type", "make", "model", "serial_number", "asset_tag", "status",
		"registered_at", "issued_at", "returned_at", "created_at", "updated_at",
	})
}

func TestSQLStoreFind(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select .* from assets where id=").
		WithArgs("asset-1").
		WillReturnRows(assetRows().AddRow(
			"asset-1", "Dana Cole", "dana@example.test", "", "", "co-1",
			"laptop", "", "", "SN-1", "", StatusActive,
			now, nil, nil, now, now,
		))

	a, err := s.Find(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if a.ID != "asset-1" || a.EmployeeEmail != "dana@example.test" || a.Status != StatusActive {
		t.Fatalf("Find returned %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreFindNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("select .* from assets where id=").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreListBuildsConditions(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select .* from assets where status = .* and manager_email = .* order by created_at desc limit").
		WithArgs(StatusActive, "boss@example.test", 500).
		WillReturnRows(assetRows().AddRow(
			"asset-1", "Dana Cole", "dana@example.test", "Boss", "boss@example.test", "",
			"laptop", "", "", "", "", StatusActive,
			now, nil, nil, now, now,
		))

	assets, err := s.List(context.Background(), Filter{Status: StatusActive, ManagerEmail: "boss@example.test"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(assets) != 1 || assets[0].ManagerEmail != "boss@example.test" {
		t.Fatalf("List returned %+v", assets)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreUpdateNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("update assets set").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), &Asset{ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreDelete(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("delete from assets where id=").
		WithArgs("asset-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(context.Background(), "asset-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
