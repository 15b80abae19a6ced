package attest

import (
	"errors"
	"time"
)

// Campaign statuses. Transitions: draft -> active -> {completed, cancelled}.
// There is no automatic time-based transition; start, cancel and complete
// are explicit admin actions.
const (
	CampaignDraft     = "draft"
	CampaignActive    = "active"
	CampaignCompleted = "completed"
	CampaignCancelled = "cancelled"
)

// Record statuses.
const (
	RecordPending    = "pending"
	RecordInProgress = "in_progress"
	RecordCompleted  = "completed"
)

// Target types.
const (
	TargetAll       = "all"
	TargetSelected  = "selected"
	TargetCompanies = "companies"
)

var (
	ErrNotFound          = errors.New("attest: not found")
	ErrInvalidInput      = errors.New("attest: invalid input")
	ErrInvalidTransition = errors.New("attest: invalid status transition")
	ErrAlreadyCompleted  = errors.New("attest: record already completed")
)

// Campaign is a scheduled attestation exercise with a target population and
// one record per targeted user.
type Campaign struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	ReminderDays   int        `json:"reminder_days"`
	EscalationDays int        `json:"escalation_days"`
	Status         string     `json:"status"`
	TargetType     string     `json:"target_type"`
	TargetIDs      []string   `json:"target_ids,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Record tracks one user's attestation within a campaign. Reminder and
// escalation stamps are side timestamps, not state transitions.
type Record struct {
	ID               string     `json:"id"`
	CampaignID       string     `json:"campaign_id"`
	UserID           string     `json:"user_id"`
	Status           string     `json:"status"`
	ReminderSentAt   *time.Time `json:"reminder_sent_at,omitempty"`
	EscalationSentAt *time.Time `json:"escalation_sent_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PendingInvite bridges a campaign target who has no account yet. On
// registration it converts into at most one Record.
type PendingInvite struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaign_id"`
	EmployeeEmail     string     `json:"employee_email"`
	InviteToken       string     `json:"-"`
	InviteSentAt      *time.Time `json:"invite_sent_at,omitempty"`
	RegisteredAt      *time.Time `json:"registered_at,omitempty"`
	ConvertedRecordID string     `json:"converted_record_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DaysElapsed returns whole days since the campaign started, zero when the
// campaign has no start date yet.
func DaysElapsed(startDate *time.Time, now time.Time) int {
	if startDate == nil || now.Before(*startDate) {
		return 0
	}
	return int(now.Sub(*startDate) / (24 * time.Hour))
}

// IsOverdue reports whether a record has slipped past the escalation window.
func IsOverdue(c *Campaign, r *Record, now time.Time) bool {
	if r.Status == RecordCompleted {
		return false
	}
	return DaysElapsed(c.StartDate, now) > c.EscalationDays
}

// NeedsReminder reports whether a record is inside the reminder window and
// has not been nudged yet.
func NeedsReminder(c *Campaign, r *Record, now time.Time) bool {
	if r.Status == RecordCompleted || r.ReminderSentAt != nil {
		return false
	}
	return DaysElapsed(c.StartDate, now) > c.ReminderDays
}

// RecordView is a record decorated with read-time computed fields and the
// owner's identity for roster listings.
type RecordView struct {
	Record
	CampaignName  string `json:"campaign_name,omitempty"`
	UserEmail     string `json:"user_email,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	DaysElapsed   int    `json:"days_elapsed"`
	IsOverdue     bool   `json:"is_overdue"`
	NeedsReminder bool   `json:"needs_reminder"`
}
