package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"kars.dev/internal/auth"
)

func TestRecordRequiresAction(t *testing.T) {
	l := NewLog(NewInMemory())
	if err := l.Record(context.Background(), Entry{EntityType: "user"}); err == nil {
		t.Fatalf("Record accepted an entry without action")
	}
}

func TestRecordFillsActorFromContext(t *testing.T) {
	l := NewLog(NewInMemory())
	ctx := auth.ContextWithUser(context.Background(), "u-1", auth.RoleAdmin, "admin@example.test")

	if err := l.Record(ctx, Entry{Action: "asset.create", EntityType: "asset", EntityID: "a-1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d; want 1", len(entries))
	}
	e := entries[0]
	if e.PerformedBy != "admin@example.test" {
		t.Fatalf("performed_by = %q; want actor email from context", e.PerformedBy)
	}
	if e.OccurredAt.IsZero() || e.ID == "" {
		t.Fatalf("entry missing defaults: %+v", e)
	}
}

func TestRecordKeepsExplicitActor(t *testing.T) {
	l := NewLog(NewInMemory())
	ctx := auth.ContextWithUser(context.Background(), "u-1", auth.RoleAdmin, "admin@example.test")

	if err := l.Record(ctx, Entry{Action: "auth.login", PerformedBy: "system"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if entries[0].PerformedBy != "system" {
		t.Fatalf("performed_by = %q; want system", entries[0].PerformedBy)
	}
}

func TestQueryFilters(t *testing.T) {
	l := NewLog(NewInMemory())
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	seed := []Entry{
		{Action: "auth.login", EntityType: "user", PerformedBy: "a@example.test", OccurredAt: base},
		{Action: "asset.create", EntityType: "asset", PerformedBy: "a@example.test", OccurredAt: base.Add(time.Hour)},
		{Action: "asset.create", EntityType: "asset", PerformedBy: "b@example.test", OccurredAt: base.Add(48 * time.Hour)},
	}
	for _, e := range seed {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	byAction, err := l.Query(ctx, Filter{Action: "asset.create"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byAction) != 2 {
		t.Fatalf("action filter = %d entries; want 2", len(byAction))
	}

	byActor, err := l.Query(ctx, Filter{PerformedBy: "b@example.test"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byActor) != 1 {
		t.Fatalf("actor filter = %d entries; want 1", len(byActor))
	}

	windowed, err := l.Query(ctx, Filter{From: base.Add(30 * time.Minute), To: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(windowed) != 1 || windowed[0].Action != "asset.create" {
		t.Fatalf("window filter = %+v; want the single in-window entry", windowed)
	}

	all, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("unfiltered = %d entries; want 3", len(all))
	}
	// Newest first.
	if !all[0].OccurredAt.After(all[2].OccurredAt) {
		t.Fatalf("entries not ordered newest first: %v then %v", all[0].OccurredAt, all[2].OccurredAt)
	}
}

func TestWipe(t *testing.T) {
	l := NewLog(NewInMemory())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Record(ctx, Entry{Action: "auth.login"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := l.Wipe(ctx)
	if err != nil {
		t.Fatalf("Wipe: %v", err)
	}
	if n != 3 {
		t.Fatalf("Wipe removed %d; want 3", n)
	}
	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries after wipe = %d; want 0", len(entries))
	}
}

func TestWriteCSV(t *testing.T) {
	entries := []Entry{{
		OccurredAt:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Action:      "asset.create",
		EntityType:  "asset",
		EntityID:    "a-1",
		PerformedBy: "admin@example.test",
	}}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d; want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "occurred_at,") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "asset.create") || !strings.Contains(lines[1], "2026-05-01T10:00:00Z") {
		t.Fatalf("row = %q", lines[1])
	}
}
