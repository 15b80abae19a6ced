package mail

import (
	"fmt"
	"strings"
	"time"

	"kars.dev/internal/attest"
)

// Plain-text bodies. The frontend renders the rich views; mail stays simple
// so it survives every client.

func renderReminder(name string, c *attest.Campaign, overdue bool, frontendURL string) string {
	var b strings.Builder
	greet := "Hello"
	if name != "" {
		greet = "Hello " + name
	}
	fmt.Fprintf(&b, "%s,\n\n", greet)
	if overdue {
		fmt.Fprintf(&b, "Your asset attestation for %q is overdue. ", c.Name)
		b.WriteString("Your manager has been notified. Please complete it as soon as possible.\n\n")
	} else {
		fmt.Fprintf(&b, "This is a reminder that your asset attestation for %q is still pending.\n\n", c.Name)
	}
	if c.EndDate != nil {
		fmt.Fprintf(&b, "Deadline: %s\n\n", formatDeadline(*c.EndDate))
	}
	fmt.Fprintf(&b, "Complete it here: %s/attestation\n", frontendURL)
	return b.String()
}

func renderInvite(c *attest.Campaign, token, frontendURL string) string {
	var b strings.Builder
	b.WriteString("Hello,\n\n")
	fmt.Fprintf(&b, "You have assets registered to your email and must complete the %q asset attestation.\n\n", c.Name)
	b.WriteString("You do not have an account yet. Register using the link below and your attestation will be waiting for you:\n\n")
	fmt.Fprintf(&b, "%s/register?invite=%s\n", frontendURL, token)
	return b.String()
}

func renderVerification(token, frontendURL string) string {
	return fmt.Sprintf(
		"Hello,\n\nPlease verify your email address by opening the link below:\n\n%s/verify-email?token=%s\n\nThe link expires in 24 hours.\n",
		frontendURL, token)
}

func renderPasswordReset(token, frontendURL string) string {
	return fmt.Sprintf(
		"Hello,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s/reset-password?token=%s\n\nThe link expires in 1 hour. If you did not request this, ignore this message.\n",
		frontendURL, token)
}

// Deadline formatting shared by the templates above lives here so tests can
// pin it down.
func formatDeadline(t time.Time) string {
	return t.Format("2 January 2006")
}
