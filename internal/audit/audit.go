package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"kars.dev/internal/auth"
	"kars.dev/internal/obs"
)

// Entry is one append-only audit log row. Entries are never mutated; the
// only deletion path is the admin danger-zone wipe.
type Entry struct {
	ID          string    `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id,omitempty"`
	EntityName  string    `json:"entity_name,omitempty"`
	Details     string    `json:"details,omitempty"`
	PerformedBy string    `json:"performed_by,omitempty"`
}

// Filter narrows audit queries for reporting.
type Filter struct {
	EntityType  string
	Action      string
	PerformedBy string
	From        time.Time
	To          time.Time
	Limit       int
}

// Store persists audit entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
	Wipe(ctx context.Context) (int64, error)
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Log records entries to the store and mirrors them as structured log lines.
type Log struct {
	store Store
	now   func() time.Time
}

// NewLog constructs a Log over the given store.
func NewLog(store Store) *Log {
	return &Log{store: store, now: time.Now}
}

// Record appends an audit entry. Actor identity is taken from the request
// context when the entry does not carry it.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("audit: action is required")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now().UTC()
	}
	if e.PerformedBy == "" {
		if email, ok := auth.EmailFromContext(ctx); ok {
			e.PerformedBy = email
		}
	}
	if err := l.store.Append(ctx, &e); err != nil {
		return err
	}

	line := map[string]any{
		"ts":     e.OccurredAt.Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  e.Action,
		"entity": e.EntityType,
	}
	if e.EntityID != "" {
		line["entity_id"] = e.EntityID
	}
	if e.PerformedBy != "" {
		line["performed_by"] = e.PerformedBy
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}
	obs.LogRequest(line)
	return nil
}

// Query returns entries matching the filter, newest first.
func (l *Log) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 200
	}
	return l.store.Query(ctx, f)
}

// Wipe deletes all entries. Danger zone only.
func (l *Log) Wipe(ctx context.Context) (int64, error) {
	return l.store.Wipe(ctx)
}

// WriteCSV streams entries as CSV for export.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"occurred_at", "action", "entity_type", "entity_id", "entity_name", "details", "performed_by"}); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.OccurredAt.UTC().Format(time.RFC3339),
			e.Action,
			e.EntityType,
			e.EntityID,
			e.EntityName,
			e.Details,
			e.PerformedBy,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
