package attest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"kars.dev/internal/auth"
	"kars.dev/internal/ids"
	"kars.dev/internal/obs"
)

// Notifier dispatches campaign mail. Failures are handled per-recipient and
// never abort the calling operation.
type Notifier interface {
	SendReminder(ctx context.Context, email, name string, c *Campaign, overdue bool) error
	SendInvite(ctx context.Context, email string, c *Campaign, token string) error
}

// EmployeeRef identifies an asset holder by denormalized identity.
type EmployeeRef struct {
	Email     string
	Name      string
	CompanyID string
}

// HolderDirectory lists employees that currently hold assets. Campaign
// targeting uses it to reach holders who never created an account.
type HolderDirectory interface {
	ListHolders(ctx context.Context) ([]EmployeeRef, error)
}

// Service implements the campaign lifecycle.
type Service struct {
	store    Store
	users    auth.UserStore
	holders  HolderDirectory
	notifier Notifier
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithNotifier wires outbound campaign mail.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithHolderDirectory wires the asset-holder lookup used when targeting
// employees without accounts.
func WithHolderDirectory(d HolderDirectory) ServiceOption {
	return func(s *Service) { s.holders = d }
}

// NewService constructs a Service.
func NewService(store Store, users auth.UserStore, opts ...ServiceOption) *Service {
	svc := &Service{
		store: store,
		users: users,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateInput carries the campaign creation payload.
type CreateInput struct {
	Name           string
	Description    string
	StartDate      *time.Time
	EndDate        *time.Time
	ReminderDays   int
	EscalationDays int
	TargetType     string
	TargetIDs      []string
	CreatedBy      string
}

// Create stores a new campaign in draft status.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Campaign, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	targetType := strings.TrimSpace(strings.ToLower(in.TargetType))
	if targetType == "" {
		targetType = TargetAll
	}
	switch targetType {
	case TargetAll, TargetSelected, TargetCompanies:
	default:
		return nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidInput, targetType)
	}
	if targetType != TargetAll && len(in.TargetIDs) == 0 {
		return nil, fmt.Errorf("%w: target ids are required for %s targeting", ErrInvalidInput, targetType)
	}
	if in.ReminderDays < 0 || in.EscalationDays < 0 {
		return nil, fmt.Errorf("%w: reminder and escalation days must be >= 0", ErrInvalidInput)
	}
	reminderDays := in.ReminderDays
	if reminderDays == 0 {
		reminderDays = 7
	}
	escalationDays := in.EscalationDays
	if escalationDays == 0 {
		escalationDays = 14
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrInvalidInput)
	}

	now := s.now().UTC()
	c := &Campaign{
		ID:             ids.New(),
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		ReminderDays:   reminderDays,
		EscalationDays: escalationDays,
		Status:         CampaignDraft,
		TargetType:     targetType,
		TargetIDs:      in.TargetIDs,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Campaigns(ctx).Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns one campaign.
func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.store.Campaigns(ctx).Find(ctx, id)
}

// List returns all campaigns.
func (s *Service) List(ctx context.Context) ([]*Campaign, error) {
	return s.store.Campaigns(ctx).List(ctx)
}

// UpdateInput carries draft-editable campaign fields.
type UpdateInput struct {
	Name           *string
	Description    *string
	StartDate      *time.Time
	EndDate        *time.Time
	ReminderDays   *int
	EscalationDays *int
	TargetType     *string
	TargetIDs      []string
}

// Update edits a campaign. Only drafts may change targeting; reminder and
// escalation windows may be tuned while active.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Campaign, error) {
	campaigns := s.store.Campaigns(ctx)
	c, err := campaigns.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != CampaignDraft {
		if in.Name != nil || in.TargetType != nil || in.TargetIDs != nil || in.StartDate != nil {
			return nil, fmt.Errorf("%w: only draft campaigns may be re-targeted", ErrInvalidTransition)
		}
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		c.Name = name
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.StartDate != nil {
		c.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		c.EndDate = in.EndDate
	}
	if in.ReminderDays != nil && *in.ReminderDays > 0 {
		c.ReminderDays = *in.ReminderDays
	}
	if in.EscalationDays != nil && *in.EscalationDays > 0 {
		c.EscalationDays = *in.EscalationDays
	}
	if in.TargetType != nil {
		targetType := strings.TrimSpace(strings.ToLower(*in.TargetType))
		switch targetType {
		case TargetAll, TargetSelected, TargetCompanies:
			c.TargetType = targetType
		default:
			return nil, fmt.Errorf("%w: unknown target type %q", ErrInvalidInput, targetType)
		}
	}
	if in.TargetIDs != nil {
		c.TargetIDs = in.TargetIDs
	}
	c.UpdatedAt = s.now().UTC()
	if err := campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a draft campaign. Started campaigns are cancelled, never
// deleted, so their records stay on the books.
func (s *Service) Delete(ctx context.Context, id string) error {
	campaigns := s.store.Campaigns(ctx)
	c, err := campaigns.Find(ctx, id)
	if err != nil {
		return err
	}
	if c.Status != CampaignDraft {
		return fmt.Errorf("%w: only draft campaigns can be deleted", ErrInvalidTransition)
	}
	return campaigns.Delete(ctx, id)
}

// StartResult summarizes campaign materialization.
type StartResult struct {
	Campaign       *Campaign `json:"campaign"`
	RecordsCreated int       `json:"records_created"`
	InvitesCreated int       `json:"invites_created"`
}

// Start moves a draft campaign to active, materializing one record per
// targeted registered user and a pending invite per unregistered holder.
func (s *Service) Start(ctx context.Context, id string) (*StartResult, error) {
	campaigns := s.store.Campaigns(ctx)
	c, err := campaigns.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != CampaignDraft {
		return nil, fmt.Errorf("%w: %s campaign cannot be started", ErrInvalidTransition, c.Status)
	}

	now := s.now().UTC()
	if c.StartDate == nil {
		c.StartDate = &now
	}
	c.Status = CampaignActive
	c.UpdatedAt = now
	if err := campaigns.Update(ctx, c); err != nil {
		return nil, err
	}

	targets, unregistered, err := s.resolveTargets(ctx, c)
	if err != nil {
		return nil, err
	}

	records := s.store.Records(ctx)
	result := &StartResult{Campaign: c}
	for _, u := range targets {
		if _, err := records.FindByCampaignAndUser(ctx, c.ID, u.ID); err == nil {
			continue
		}
		rec := &Record{
			ID:         ids.New(),
			CampaignID: c.ID,
			UserID:     u.ID,
			Status:     RecordPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := records.Create(ctx, rec); err != nil {
			// The unique index makes double-starts converge instead of fail.
			obs.LogError("attestation record create skipped", err, map[string]any{
				"campaign_id": c.ID,
				"user_id":     u.ID,
			})
			continue
		}
		result.RecordsCreated++
	}

	invites := s.store.Invites(ctx)
	for _, ref := range unregistered {
		inv := &PendingInvite{
			ID:            ids.New(),
			CampaignID:    c.ID,
			EmployeeEmail: ref.Email,
			InviteToken:   uuid.NewString(),
			CreatedAt:     now,
		}
		if err := invites.Create(ctx, inv); err != nil {
			obs.LogError("pending invite create skipped", err, map[string]any{
				"campaign_id": c.ID,
				"email":       ref.Email,
			})
			continue
		}
		result.InvitesCreated++
		if s.notifier != nil {
			if err := s.notifier.SendInvite(ctx, ref.Email, c, inv.InviteToken); err != nil {
				obs.LogError("invite mail failed", err, map[string]any{
					"campaign_id": c.ID,
					"email":       ref.Email,
				})
				continue
			}
			inv.InviteSentAt = &now
			_ = invites.Update(ctx, inv)
		}
	}
	return result, nil
}

// resolveTargets splits the campaign population into registered users and
// unregistered asset holders.
func (s *Service) resolveTargets(ctx context.Context, c *Campaign) ([]*auth.User, []EmployeeRef, error) {
	var users []*auth.User
	var err error

	switch c.TargetType {
	case TargetSelected:
		for _, userID := range c.TargetIDs {
			u, err := s.users.Find(ctx, userID)
			if err != nil {
				obs.LogError("campaign target not found", err, map[string]any{
					"campaign_id": c.ID,
					"user_id":     userID,
				})
				continue
			}
			users = append(users, u)
		}
		return users, nil, nil
	case TargetCompanies:
		for _, companyID := range c.TargetIDs {
			batch, err := s.users.ListByCompany(ctx, companyID)
			if err != nil {
				return nil, nil, err
			}
			users = append(users, batch...)
		}
	default: // TargetAll
		users, err = s.users.List(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[u.Email] = struct{}{}
	}

	var unregistered []EmployeeRef
	if s.holders != nil {
		holders, err := s.holders.ListHolders(ctx)
		if err != nil {
			return nil, nil, err
		}
		seen := make(map[string]struct{})
		for _, ref := range holders {
			email := strings.ToLower(ref.Email)
			if email == "" {
				continue
			}
			if c.TargetType == TargetCompanies && !contains(c.TargetIDs, ref.CompanyID) {
				continue
			}
			if _, ok := known[email]; ok {
				continue
			}
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			ref.Email = email
			unregistered = append(unregistered, ref)
		}
	}
	return users, unregistered, nil
}

// Cancel moves an active campaign to cancelled. Completed records are left
// untouched.
func (s *Service) Cancel(ctx context.Context, id string) (*Campaign, error) {
	return s.finish(ctx, id, CampaignCancelled)
}

// Complete moves an active campaign to completed.
func (s *Service) Complete(ctx context.Context, id string) (*Campaign, error) {
	return s.finish(ctx, id, CampaignCompleted)
}

func (s *Service) finish(ctx context.Context, id, status string) (*Campaign, error) {
	campaigns := s.store.Campaigns(ctx)
	c, err := campaigns.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != CampaignActive {
		return nil, fmt.Errorf("%w: %s campaign cannot become %s", ErrInvalidTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = s.now().UTC()
	if err := campaigns.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkInProgress flags a record as opened by its owner.
func (s *Service) MarkInProgress(ctx context.Context, recordID, userID string) (*Record, error) {
	records := s.store.Records(ctx)
	rec, err := records.Find(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if userID != "" && rec.UserID != userID {
		return nil, ErrNotFound
	}
	if rec.Status == RecordCompleted {
		return nil, ErrAlreadyCompleted
	}
	rec.Status = RecordInProgress
	rec.UpdatedAt = s.now().UTC()
	if err := records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CompleteRecord records the owner's confirmation. userID empty means an
// administrative override.
func (s *Service) CompleteRecord(ctx context.Context, recordID, userID string) (*Record, error) {
	records := s.store.Records(ctx)
	rec, err := records.Find(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if userID != "" && rec.UserID != userID {
		return nil, ErrNotFound
	}
	if rec.Status == RecordCompleted {
		return nil, ErrAlreadyCompleted
	}
	now := s.now().UTC()
	rec.Status = RecordCompleted
	rec.CompletedAt = &now
	rec.UpdatedAt = now
	if err := records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remind sends a reminder for one record and stamps it. Overdue records are
// escalated to the manager as well.
func (s *Service) Remind(ctx context.Context, recordID string) (*Record, error) {
	records := s.store.Records(ctx)
	rec, err := records.Find(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status == RecordCompleted {
		return nil, ErrAlreadyCompleted
	}
	c, err := s.store.Campaigns(ctx).Find(ctx, rec.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := s.remindOne(ctx, c, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) remindOne(ctx context.Context, c *Campaign, rec *Record) error {
	u, err := s.users.Find(ctx, rec.UserID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	overdue := IsOverdue(c, rec, now)
	if s.notifier != nil {
		if err := s.notifier.SendReminder(ctx, u.Email, u.Name, c, overdue); err != nil {
			return err
		}
	}
	rec.ReminderSentAt = &now
	if overdue {
		rec.EscalationSentAt = &now
	}
	rec.UpdatedAt = now
	return s.store.Records(ctx).Update(ctx, rec)
}

// BulkRemindResult aggregates per-recipient outcomes; there is no retry queue.
type BulkRemindResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// BulkRemind reminds every open record in the campaign, or only the listed
// records when recordIDs is non-empty.
func (s *Service) BulkRemind(ctx context.Context, campaignID string, recordIDs []string) (BulkRemindResult, error) {
	var result BulkRemindResult
	c, err := s.store.Campaigns(ctx).Find(ctx, campaignID)
	if err != nil {
		return result, err
	}
	if c.Status != CampaignActive {
		return result, fmt.Errorf("%w: campaign is %s", ErrInvalidTransition, c.Status)
	}
	recs, err := s.store.Records(ctx).ListByCampaign(ctx, campaignID)
	if err != nil {
		return result, err
	}
	only := make(map[string]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		only[id] = struct{}{}
	}
	for _, rec := range recs {
		if rec.Status == RecordCompleted {
			continue
		}
		if len(only) > 0 {
			if _, ok := only[rec.ID]; !ok {
				continue
			}
		}
		if err := s.remindOne(ctx, c, rec); err != nil {
			result.Failed++
			obs.LogError("reminder failed", err, map[string]any{
				"campaign_id": campaignID,
				"record_id":   rec.ID,
			})
			continue
		}
		result.Sent++
	}
	return result, nil
}

// ConvertPendingInvites converts every invite matching the email whose
// campaign is still active into an attestation record. Per-invite failures
// are logged and skipped; registration must never fail because of them.
func (s *Service) ConvertPendingInvites(ctx context.Context, email, userID string) (int, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || userID == "" {
		return 0, nil
	}
	invites := s.store.Invites(ctx)
	pending, err := invites.ListByEmail(ctx, email)
	if err != nil {
		return 0, err
	}

	converted := 0
	for _, inv := range pending {
		if inv.RegisteredAt != nil {
			continue
		}
		c, err := s.store.Campaigns(ctx).Find(ctx, inv.CampaignID)
		if err != nil || c.Status != CampaignActive {
			continue
		}
		if _, err := s.convertInvite(ctx, inv, userID); err != nil {
			obs.LogError("invite conversion failed", err, map[string]any{
				"invite_id":   inv.ID,
				"campaign_id": inv.CampaignID,
			})
			continue
		}
		converted++
	}
	return converted, nil
}

// InviteByToken resolves a registration invite token.
func (s *Service) InviteByToken(ctx context.Context, token string) (*PendingInvite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	return s.store.Invites(ctx).FindByToken(ctx, token)
}

// ConvertInviteByToken converts the single invite the token names into an
// attestation record for the newly registered user. An already-converted
// token or an inactive campaign yields ErrNotFound so registration handlers
// can treat the token as spent.
func (s *Service) ConvertInviteByToken(ctx context.Context, token, userID string) (*Record, error) {
	inv, err := s.InviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.RegisteredAt != nil {
		return nil, fmt.Errorf("%w: invite already converted", ErrNotFound)
	}
	c, err := s.store.Campaigns(ctx).Find(ctx, inv.CampaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != CampaignActive {
		return nil, fmt.Errorf("%w: campaign is %s", ErrNotFound, c.Status)
	}
	return s.convertInvite(ctx, inv, userID)
}

// convertInvite creates (or reuses) the record and stamps the invite. Each
// user keeps at most one record per campaign.
func (s *Service) convertInvite(ctx context.Context, inv *PendingInvite, userID string) (*Record, error) {
	records := s.store.Records(ctx)
	now := s.now().UTC()
	rec, err := records.FindByCampaignAndUser(ctx, inv.CampaignID, userID)
	if err != nil {
		rec = &Record{
			ID:         ids.New(),
			CampaignID: inv.CampaignID,
			UserID:     userID,
			Status:     RecordPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := records.Create(ctx, rec); err != nil {
			return nil, err
		}
	}
	inv.RegisteredAt = &now
	inv.ConvertedRecordID = rec.ID
	if err := s.store.Invites(ctx).Update(ctx, inv); err != nil {
		return nil, err
	}
	return rec, nil
}

// PendingInvites lists a campaign's outstanding and converted invites.
func (s *Service) PendingInvites(ctx context.Context, campaignID string) ([]*PendingInvite, error) {
	if _, err := s.store.Campaigns(ctx).Find(ctx, campaignID); err != nil {
		return nil, err
	}
	all, err := s.store.Invites(ctx).ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	pending := make([]*PendingInvite, 0, len(all))
	for _, inv := range all {
		if inv.RegisteredAt == nil {
			pending = append(pending, inv)
		}
	}
	return pending, nil
}

// Roster returns decorated records for a campaign.
func (s *Service) Roster(ctx context.Context, campaignID string) ([]RecordView, error) {
	c, err := s.store.Campaigns(ctx).Find(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Records(ctx).ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		view := RecordView{
			Record:        *rec,
			CampaignName:  c.Name,
			DaysElapsed:   DaysElapsed(c.StartDate, now),
			IsOverdue:     IsOverdue(c, rec, now),
			NeedsReminder: NeedsReminder(c, rec, now),
		}
		if u, err := s.users.Find(ctx, rec.UserID); err == nil {
			view.UserEmail = u.Email
			view.UserName = u.Name
		}
		views = append(views, view)
	}
	return views, nil
}

// MyRecords returns the user's records across campaigns.
func (s *Service) MyRecords(ctx context.Context, userID string) ([]RecordView, error) {
	recs, err := s.store.Records(ctx).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	views := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		c, err := s.store.Campaigns(ctx).Find(ctx, rec.CampaignID)
		if err != nil {
			continue
		}
		views = append(views, RecordView{
			Record:        *rec,
			CampaignName:  c.Name,
			DaysElapsed:   DaysElapsed(c.StartDate, now),
			IsOverdue:     IsOverdue(c, rec, now),
			NeedsReminder: NeedsReminder(c, rec, now),
		})
	}
	return views, nil
}

// WriteRosterCSV streams the campaign roster as CSV.
func WriteRosterCSV(w io.Writer, campaign *Campaign, views []RecordView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"campaign", "user_email", "user_name", "status", "days_elapsed", "is_overdue", "reminder_sent_at", "escalation_sent_at", "completed_at"}); err != nil {
		return err
	}
	formatTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	for _, v := range views {
		row := []string{
			campaign.Name,
			v.UserEmail,
			v.UserName,
			v.Status,
			fmt.Sprintf("%d", v.DaysElapsed),
			fmt.Sprintf("%t", v.IsOverdue),
			formatTime(v.ReminderSentAt),
			formatTime(v.EscalationSentAt),
			formatTime(v.CompletedAt),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
