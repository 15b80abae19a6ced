// Package mail sends transactional email over SMTP. Delivery settings come
// from the admin settings store when present, falling back to environment
// configuration. All sends are best-effort from the caller's point of view.
package mail

import (
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"kars.dev/internal/attest"
	"kars.dev/internal/config"
	"kars.dev/internal/obs"
	"kars.dev/internal/settings"
)

var ErrNotConfigured = errors.New("mail: smtp is not configured")

// Mailer sends one message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, kind, to, subject, textBody string) error
}

// SMTPMailer delivers via go-mail, resolving settings per send so admin
// changes take effect without a restart.
type SMTPMailer struct {
	settings *settings.Service
	fallback config.Config
}

func NewSMTPMailer(svc *settings.Service, cfg config.Config) *SMTPMailer {
	return &SMTPMailer{settings: svc, fallback: cfg}
}

func (m *SMTPMailer) resolve(ctx context.Context) (*settings.SMTPSettings, error) {
	if m.settings != nil {
		if s, err := m.settings.SMTP(ctx); err == nil && s.Host != "" {
			return s, nil
		}
	}
	if m.fallback.SMTPHost == "" {
		return nil, ErrNotConfigured
	}
	return &settings.SMTPSettings{
		Host:      m.fallback.SMTPHost,
		Port:      m.fallback.SMTPPort,
		Username:  m.fallback.SMTPUsername,
		Password:  m.fallback.SMTPPassword,
		FromEmail: m.fallback.SMTPFrom,
		UseTLS:    true,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, kind, to, subject, textBody string) error {
	err := m.send(ctx, to, subject, textBody)
	obs.ObserveMailSend(kind, err)
	return err
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, textBody string) error {
	cfg, err := m.resolve(ctx)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	from := cfg.FromEmail
	if cfg.FromName != "" {
		if err := msg.FromFormat(cfg.FromName, from); err != nil {
			return fmt.Errorf("mail: from address: %w", err)
		}
	} else if err := msg.From(from); err != nil {
		return fmt.Errorf("mail: from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail: to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, textBody)

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("mail: client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// Capture is a Mailer for tests: it records messages instead of sending.
type Capture struct {
	Messages []CapturedMessage
	Err      error
}

type CapturedMessage struct {
	Kind    string
	To      string
	Subject string
	Body    string
}

func (c *Capture) Send(_ context.Context, kind, to, subject, body string) error {
	if c.Err != nil {
		return c.Err
	}
	c.Messages = append(c.Messages, CapturedMessage{Kind: kind, To: to, Subject: subject, Body: body})
	return nil
}

var _ attest.Notifier = (*Notifier)(nil)

// Notifier renders campaign mail on top of a Mailer.
type Notifier struct {
	mailer      Mailer
	frontendURL string
}

func NewNotifier(mailer Mailer, frontendURL string) *Notifier {
	return &Notifier{mailer: mailer, frontendURL: frontendURL}
}

func (n *Notifier) SendReminder(ctx context.Context, email, name string, c *attest.Campaign, overdue bool) error {
	subject := fmt.Sprintf("Reminder: %s attestation pending", c.Name)
	if overdue {
		subject = fmt.Sprintf("OVERDUE: %s attestation required", c.Name)
	}
	body := renderReminder(name, c, overdue, n.frontendURL)
	return n.mailer.Send(ctx, "reminder", email, subject, body)
}

func (n *Notifier) SendInvite(ctx context.Context, email string, c *attest.Campaign, token string) error {
	subject := fmt.Sprintf("Action required: register for %s", c.Name)
	body := renderInvite(c, token, n.frontendURL)
	return n.mailer.Send(ctx, "invite", email, subject, body)
}

// SendVerification mails an email-verification link.
func (n *Notifier) SendVerification(ctx context.Context, email, token string) error {
	body := renderVerification(token, n.frontendURL)
	return n.mailer.Send(ctx, "verification", email, "Verify your email address", body)
}

// SendPasswordReset mails a reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, email, token string) error {
	body := renderPasswordReset(token, n.frontendURL)
	return n.mailer.Send(ctx, "password_reset", email, "Reset your password", body)
}

// SendTest delivers the admin settings test message.
func (n *Notifier) SendTest(ctx context.Context, email string) error {
	return n.mailer.Send(ctx, "test", email, "SMTP test",
		"This is a test message. Your SMTP settings are working.")
}
