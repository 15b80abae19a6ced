package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"kars.dev/internal/attest"
)

func TestNotifierReminderSubjects(t *testing.T) {
	cap := &Capture{}
	n := NewNotifier(cap, "https://kars.example.test")
	ctx := context.Background()
	end := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	c := &attest.Campaign{Name: "Q3 audit", EndDate: &end}

	if err := n.SendReminder(ctx, "dana@example.test", "Dana", c, false); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if err := n.SendReminder(ctx, "dana@example.test", "Dana", c, true); err != nil {
		t.Fatalf("SendReminder overdue: %v", err)
	}
	if len(cap.Messages) != 2 {
		t.Fatalf("messages = %d; want 2", len(cap.Messages))
	}

	first := cap.Messages[0]
	if first.Kind != "reminder" || !strings.HasPrefix(first.Subject, "Reminder:") {
		t.Fatalf("reminder message = %+v", first)
	}
	if !strings.Contains(first.Body, "Hello Dana") {
		t.Fatalf("reminder body missing greeting: %q", first.Body)
	}
	if !strings.Contains(first.Body, "15 September 2026") {
		t.Fatalf("reminder body missing deadline: %q", first.Body)
	}

	second := cap.Messages[1]
	if !strings.HasPrefix(second.Subject, "OVERDUE:") {
		t.Fatalf("overdue subject = %q", second.Subject)
	}
	if !strings.Contains(second.Body, "overdue") {
		t.Fatalf("overdue body = %q", second.Body)
	}
}

func TestNotifierInviteCarriesToken(t *testing.T) {
	cap := &Capture{}
	n := NewNotifier(cap, "https://kars.example.test")
	c := &attest.Campaign{Name: "Q3 audit"}

	if err := n.SendInvite(context.Background(), "newhire@example.test", c, "tok-123"); err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	msg := cap.Messages[0]
	if msg.Kind != "invite" || msg.To != "newhire@example.test" {
		t.Fatalf("invite message = %+v", msg)
	}
	if !strings.Contains(msg.Body, "https://kars.example.test/register?invite=tok-123") {
		t.Fatalf("invite body missing registration link: %q", msg.Body)
	}
}

func TestNotifierVerificationAndReset(t *testing.T) {
	cap := &Capture{}
	n := NewNotifier(cap, "https://kars.example.test")
	ctx := context.Background()

	if err := n.SendVerification(ctx, "dana@example.test", "vt-1"); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	if err := n.SendPasswordReset(ctx, "dana@example.test", "rt-1"); err != nil {
		t.Fatalf("SendPasswordReset: %v", err)
	}

	if !strings.Contains(cap.Messages[0].Body, "/verify-email?token=vt-1") {
		t.Fatalf("verification body = %q", cap.Messages[0].Body)
	}
	if !strings.Contains(cap.Messages[1].Body, "/reset-password?token=rt-1") {
		t.Fatalf("reset body = %q", cap.Messages[1].Body)
	}
}

func TestNotifierPropagatesSendFailure(t *testing.T) {
	sentinel := errors.New("smtp down")
	n := NewNotifier(&Capture{Err: sentinel}, "https://kars.example.test")

	err := n.SendTest(context.Background(), "admin@example.test")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v; want wrapped smtp failure", err)
	}
}
