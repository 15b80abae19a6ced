package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
)

func TestGetRawNotFound(t *testing.T) {
	svc := NewService(NewInMemory())
	if _, err := svc.GetRaw(context.Background(), KeySMTP); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}

func TestPutRawRejectsInvalidJSON(t *testing.T) {
	svc := NewService(NewInMemory())
	if err := svc.PutRaw(context.Background(), KeySMTP, json.RawMessage(`{"host":`)); err == nil {
		t.Fatalf("PutRaw accepted invalid JSON")
	}
}

func TestPutRawRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemory())

	doc := json.RawMessage(`{"org_name":"KARS"}`)
	if err := svc.PutRaw(ctx, KeyBranding, doc); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	got, err := svc.GetRaw(ctx, KeyBranding)
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(got) != string(doc) {
		t.Fatalf("GetRaw = %s; want %s", got, doc)
	}
}

func TestTypedSMTPSettings(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemory())

	in := SMTPSettings{
		Host:      "smtp.example.test",
		Port:      587,
		Username:  "mailer",
		Password:  "secret",
		FromEmail: "noreply@example.test",
		FromName:  "KARS",
		UseTLS:    true,
	}
	if err := svc.PutSMTP(ctx, in); err != nil {
		t.Fatalf("PutSMTP: %v", err)
	}
	got, err := svc.SMTP(ctx)
	if err != nil {
		t.Fatalf("SMTP: %v", err)
	}
	if *got != in {
		t.Fatalf("SMTP = %+v; want %+v", got, in)
	}
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemory())

	if err := svc.PutBranding(ctx, Branding{OrgName: "First"}); err != nil {
		t.Fatalf("PutBranding: %v", err)
	}
	if err := svc.PutBranding(ctx, Branding{OrgName: "Second"}); err != nil {
		t.Fatalf("PutBranding: %v", err)
	}
	got, err := svc.Branding(ctx)
	if err != nil {
		t.Fatalf("Branding: %v", err)
	}
	if got.OrgName != "Second" {
		t.Fatalf("org_name = %q; want Second", got.OrgName)
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewInMemory())

	if err := svc.PutBranding(ctx, Branding{OrgName: "KARS"}); err != nil {
		t.Fatalf("PutBranding: %v", err)
	}
	if err := svc.PutSystem(ctx, SystemSettings{SessionTTLMinutes: 60}); err != nil {
		t.Fatalf("PutSystem: %v", err)
	}

	keys, err := svc.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	want := []string{KeyBranding, KeySystem}
	if len(keys) != len(want) || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("Keys = %v; want %v", keys, want)
	}
}
