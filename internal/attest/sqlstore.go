package attest

import (
	"context"
	"database/sql"
	"encoding/json"

	"kars.dev/internal/ids"
	"kars.dev/internal/store"
)

var _ Store = (*SQLStore)(nil)

// SQLStore implements Store on PostgreSQL or SQLite.
type SQLStore struct {
	db *store.DB
}

func NewSQLStore(db *store.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Campaigns(context.Context) CampaignStore { return &campaignStore{db: s.db} }
func (s *SQLStore) Records(context.Context) RecordStore     { return &recordStore{db: s.db} }
func (s *SQLStore) Invites(context.Context) InviteStore     { return &inviteStore{db: s.db} }

// Campaign store -----------------------------------------------------------

type campaignStore struct{ db *store.DB }

const campaignColumns = `id, name, description, start_date, end_date, reminder_days,
	escalation_days, status, target_type, target_user_ids, created_by, created_at, updated_at`

// target_user_ids is persisted as a JSON array so both engines can store it
// in a plain text column.
func encodeTargetIDs(ids []string) string {
	if len(ids) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func scanCampaign(row interface{ Scan(...any) error }) (*Campaign, error) {
	var c Campaign
	var targetIDs string
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.StartDate, &c.EndDate, &c.ReminderDays,
		&c.EscalationDays, &c.Status, &c.TargetType, &targetIDs, &c.CreatedBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if targetIDs != "" && targetIDs != "[]" {
		_ = json.Unmarshal([]byte(targetIDs), &c.TargetIDs)
	}
	return &c, nil
}

func (s *campaignStore) Create(ctx context.Context, c *Campaign) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into attestation_campaigns(`+campaignColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`),
		c.ID, c.Name, c.Description, c.StartDate, c.EndDate, c.ReminderDays,
		c.EscalationDays, c.Status, c.TargetType, encodeTargetIDs(c.TargetIDs),
		c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *campaignStore) Find(ctx context.Context, id string) (*Campaign, error) {
	return scanCampaign(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+campaignColumns+` from attestation_campaigns where id=$1`), id))
}

func (s *campaignStore) List(ctx context.Context) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+campaignColumns+` from attestation_campaigns order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *campaignStore) Update(ctx context.Context, c *Campaign) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update attestation_campaigns
		 set name=$1, description=$2, start_date=$3, end_date=$4, reminder_days=$5,
		     escalation_days=$6, status=$7, target_type=$8, target_user_ids=$9, updated_at=$10
		 where id=$11`),
		c.Name, c.Description, c.StartDate, c.EndDate, c.ReminderDays,
		c.EscalationDays, c.Status, c.TargetType, encodeTargetIDs(c.TargetIDs),
		c.UpdatedAt, c.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *campaignStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`delete from attestation_campaigns where id=$1`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Record store -------------------------------------------------------------

type recordStore struct{ db *store.DB }

const recordColumns = `id, campaign_id, user_id, status, reminder_sent_at,
	escalation_sent_at, completed_at, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.CampaignID, &r.UserID, &r.Status, &r.ReminderSentAt,
		&r.EscalationSentAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *recordStore) Create(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into attestation_records(`+recordColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`),
		r.ID, r.CampaignID, r.UserID, r.Status, r.ReminderSentAt,
		r.EscalationSentAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *recordStore) Find(ctx context.Context, id string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+recordColumns+` from attestation_records where id=$1`), id))
}

func (s *recordStore) FindByCampaignAndUser(ctx context.Context, campaignID, userID string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+recordColumns+` from attestation_records where campaign_id=$1 and user_id=$2`),
		campaignID, userID))
}

func (s *recordStore) list(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *recordStore) ListByCampaign(ctx context.Context, campaignID string) ([]*Record, error) {
	return s.list(ctx,
		`select `+recordColumns+` from attestation_records where campaign_id=$1 order by created_at`,
		campaignID)
}

func (s *recordStore) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.list(ctx,
		`select `+recordColumns+` from attestation_records where user_id=$1 order by created_at desc`,
		userID)
}

func (s *recordStore) Update(ctx context.Context, r *Record) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update attestation_records
		 set status=$1, reminder_sent_at=$2, escalation_sent_at=$3, completed_at=$4, updated_at=$5
		 where id=$6`),
		r.Status, r.ReminderSentAt, r.EscalationSentAt, r.CompletedAt, r.UpdatedAt, r.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Invite store -------------------------------------------------------------

type inviteStore struct{ db *store.DB }

const inviteColumns = `id, campaign_id, employee_email, invite_token, invite_sent_at,
	registered_at, converted_record_id, created_at`

func scanInvite(row interface{ Scan(...any) error }) (*PendingInvite, error) {
	var inv PendingInvite
	var converted sql.NullString
	err := row.Scan(&inv.ID, &inv.CampaignID, &inv.EmployeeEmail, &inv.InviteToken,
		&inv.InviteSentAt, &inv.RegisteredAt, &converted, &inv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	inv.ConvertedRecordID = converted.String
	return &inv, nil
}

func (s *inviteStore) Create(ctx context.Context, inv *PendingInvite) error {
	if inv.ID == "" {
		inv.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`insert into attestation_pending_invites(`+inviteColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`),
		inv.ID, inv.CampaignID, inv.EmployeeEmail, inv.InviteToken, inv.InviteSentAt,
		inv.RegisteredAt, nullable(inv.ConvertedRecordID), inv.CreatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *inviteStore) FindByToken(ctx context.Context, token string) (*PendingInvite, error) {
	return scanInvite(s.db.QueryRowContext(ctx, s.db.Rebind(
		`select `+inviteColumns+` from attestation_pending_invites where invite_token=$1`), token))
}

func (s *inviteStore) list(ctx context.Context, query string, args ...any) ([]*PendingInvite, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PendingInvite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *inviteStore) ListByEmail(ctx context.Context, email string) ([]*PendingInvite, error) {
	return s.list(ctx,
		`select `+inviteColumns+` from attestation_pending_invites where employee_email=$1 order by created_at`,
		email)
}

func (s *inviteStore) ListByCampaign(ctx context.Context, campaignID string) ([]*PendingInvite, error) {
	return s.list(ctx,
		`select `+inviteColumns+` from attestation_pending_invites where campaign_id=$1 order by created_at`,
		campaignID)
}

func (s *inviteStore) Update(ctx context.Context, inv *PendingInvite) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`update attestation_pending_invites
		 set invite_sent_at=$1, registered_at=$2, converted_record_id=$3
		 where id=$4`),
		inv.InviteSentAt, inv.RegisteredAt, nullable(inv.ConvertedRecordID), inv.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
