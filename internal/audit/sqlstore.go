package audit

import (
	"context"
	"fmt"
	"strings"

	"kars.dev/internal/ids"
	"kars.dev/internal/store"
)

var _ Store = (*SQLStore)(nil)

// SQLStore persists audit entries in the audit_log table.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into audit_log(id, occurred_at, action, entity_type, entity_id, entity_name, details, performed_by)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`),
		e.ID, e.OccurredAt, e.Action, e.EntityType, e.EntityID, e.EntityName, e.Details, e.PerformedBy,
	)
	return err
}

func (s *SQLStore) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EntityType != "" {
		conds = append(conds, "entity_type = "+arg(f.EntityType))
	}
	if f.Action != "" {
		conds = append(conds, "action = "+arg(f.Action))
	}
	if f.PerformedBy != "" {
		conds = append(conds, "performed_by = "+arg(f.PerformedBy))
	}
	if !f.From.IsZero() {
		conds = append(conds, "occurred_at >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "occurred_at <= "+arg(f.To))
	}

	query := `select id, occurred_at, action, entity_type, entity_id, entity_name, details, performed_by from audit_log`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by occurred_at desc limit " + arg(f.Limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Action, &e.EntityType, &e.EntityID, &e.EntityName, &e.Details, &e.PerformedBy); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLStore) Wipe(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from audit_log`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
