// Package report computes read-side aggregations over asset, campaign and
// audit rows. Everything here is a plain SQL rollup; no state is written.
package report

import (
	"context"

	"kars.dev/internal/store"
)

// Service runs aggregation queries against the shared pool.
type Service struct {
	db *store.DB
}

func NewService(db *store.DB) *Service {
	return &Service{db: db}
}

// Summary is the dashboard headline block.
type Summary struct {
	TotalAssets     int            `json:"total_assets"`
	AssetsByStatus  map[string]int `json:"assets_by_status"`
	AssetsByType    map[string]int `json:"assets_by_type"`
	TotalUsers      int            `json:"total_users"`
	ActiveCampaigns int            `json:"active_campaigns"`
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	out := &Summary{
		AssetsByStatus: map[string]int{},
		AssetsByType:   map[string]int{},
	}
	if err := s.countInto(ctx, `select status, count(*) from assets group by status`, out.AssetsByStatus, &out.TotalAssets); err != nil {
		return nil, err
	}
	if err := s.countInto(ctx, `select asset_type, count(*) from assets group by asset_type`, out.AssetsByType, nil); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&out.TotalUsers); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, s.db.Rebind(
		`select count(*) from attestation_campaigns where status=$1`), "active").Scan(&out.ActiveCampaigns)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) countInto(ctx context.Context, query string, dest map[string]int, total *int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dest[key] = n
		if total != nil {
			*total += n
		}
	}
	return rows.Err()
}

// CompanyStat is one row of the per-company breakdown.
type CompanyStat struct {
	CompanyID    string `json:"company_id"`
	TotalAssets  int    `json:"total_assets"`
	ActiveAssets int    `json:"active_assets"`
	Employees    int    `json:"employees"`
}

// ManagerStat is one row of the per-manager breakdown.
type ManagerStat struct {
	ManagerEmail string `json:"manager_email"`
	ManagerName  string `json:"manager_name"`
	TotalAssets  int    `json:"total_assets"`
	Employees    int    `json:"employees"`
}

// Statistics groups asset inventory by company and by manager.
type Statistics struct {
	ByCompany []CompanyStat `json:"by_company"`
	ByManager []ManagerStat `json:"by_manager"`
}

func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	out := &Statistics{}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`select company_id,
		        count(*),
		        sum(case when status=$1 then 1 else 0 end),
		        count(distinct employee_email)
		 from assets group by company_id order by count(*) desc`), "active")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st CompanyStat
		if err := rows.Scan(&st.CompanyID, &st.TotalAssets, &st.ActiveAssets, &st.Employees); err != nil {
			return nil, err
		}
		out.ByCompany = append(out.ByCompany, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := s.db.QueryContext(ctx,
		`select manager_email, max(manager_name), count(*), count(distinct employee_email)
		 from assets where manager_email <> '' group by manager_email order by count(*) desc`)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var st ManagerStat
		if err := mrows.Scan(&st.ManagerEmail, &st.ManagerName, &st.TotalAssets, &st.Employees); err != nil {
			return nil, err
		}
		out.ByManager = append(out.ByManager, st)
	}
	return out, mrows.Err()
}

// CampaignCompliance is one campaign's completion rollup.
type CampaignCompliance struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Status       string  `json:"status"`
	Total        int     `json:"total_records"`
	Completed    int     `json:"completed_records"`
	InProgress   int     `json:"in_progress_records"`
	Pending      int     `json:"pending_records"`
	CompletionPc float64 `json:"completion_pct"`
}

// Compliance reports per-campaign completion rates, newest campaigns first.
func (s *Service) Compliance(ctx context.Context) ([]CampaignCompliance, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(
		`select c.id, c.name, c.status,
		        count(r.id),
		        sum(case when r.status=$1 then 1 else 0 end),
		        sum(case when r.status=$2 then 1 else 0 end)
		 from attestation_campaigns c
		 left join attestation_records r on r.campaign_id = c.id
		 group by c.id, c.name, c.status, c.created_at
		 order by c.created_at desc`), "completed", "in_progress")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CampaignCompliance
	for rows.Next() {
		var cc CampaignCompliance
		var completed, inProgress *int
		if err := rows.Scan(&cc.CampaignID, &cc.CampaignName, &cc.Status, &cc.Total, &completed, &inProgress); err != nil {
			return nil, err
		}
		// SUM over zero rows is NULL on both engines.
		if completed != nil {
			cc.Completed = *completed
		}
		if inProgress != nil {
			cc.InProgress = *inProgress
		}
		cc.Pending = cc.Total - cc.Completed - cc.InProgress
		if cc.Total > 0 {
			cc.CompletionPc = float64(cc.Completed) / float64(cc.Total) * 100
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// TrendPoint is one month's registration count.
type TrendPoint struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Trends returns monthly asset registration counts, oldest first.
func (s *Service) Trends(ctx context.Context) ([]TrendPoint, error) {
	// Month bucketing has no shared syntax across the two engines.
	var expr string
	if s.db.Dialect == store.Postgres {
		expr = `to_char(registered_at, 'YYYY-MM')`
	} else {
		expr = `strftime('%Y-%m', registered_at)`
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+expr+` as month, count(*) from assets group by month order by month`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Month, &p.Count); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
