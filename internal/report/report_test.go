package report

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"kars.dev/internal/store"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(store.Wrap(db, store.Postgres)), mock
}

func TestSummary(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("select status, count\\(\\*\\) from assets group by status").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("active", 7).
			AddRow("returned", 3))
	mock.ExpectQuery("select asset_type, count\\(\\*\\) from assets group by asset_type").
		WillReturnRows(sqlmock.NewRows([]string{"asset_type", "count"}).
			AddRow("laptop", 8).
			AddRow("phone", 2))
	mock.ExpectQuery("select count\\(\\*\\) from users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("select count\\(\\*\\) from attestation_campaigns where status=").
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	got, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if got.TotalAssets != 10 {
		t.Fatalf("total assets = %d; want 10", got.TotalAssets)
	}
	if got.AssetsByStatus["active"] != 7 || got.AssetsByType["laptop"] != 8 {
		t.Fatalf("breakdowns = %+v", got)
	}
	if got.TotalUsers != 5 || got.ActiveCampaigns != 1 {
		t.Fatalf("summary = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestComplianceHandlesEmptyCampaign(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("from attestation_campaigns c").
		WithArgs("completed", "in_progress").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "total", "completed", "in_progress"}).
			AddRow("c-1", "Q3 audit", "active", 4, 2, 1).
			AddRow("c-2", "Empty draft", "draft", 0, nil, nil))

	got, err := svc.Compliance(context.Background())
	if err != nil {
		t.Fatalf("Compliance: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d; want 2", len(got))
	}
	if got[0].Pending != 1 || got[0].CompletionPc != 50 {
		t.Fatalf("first campaign = %+v", got[0])
	}
	if got[1].Completed != 0 || got[1].Pending != 0 || got[1].CompletionPc != 0 {
		t.Fatalf("empty campaign = %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTrendsUsesDialectBucketing(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("select to_char\\(registered_at, 'YYYY-MM'\\) as month").
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).
			AddRow("2026-01", 3).
			AddRow("2026-02", 5))

	got, err := svc.Trends(context.Background())
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	if len(got) != 2 || got[0].Month != "2026-01" || got[1].Count != 5 {
		t.Fatalf("trends = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
