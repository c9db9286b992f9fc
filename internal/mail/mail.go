// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mail delivers transactional email through SendGrid.
package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
	"github.com/ManuGH/backend/internal/resilience"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	ErrNoRecipients = errors.New("message has no recipients")
	ErrRejected     = errors.New("sendgrid rejected the message")
)

// Message is one outgoing email.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// sendClient is the subset of the SendGrid client used here.
type sendClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// Mailer sends messages from the configured sender address.
type Mailer struct {
	client  sendClient
	from    string
	sandbox bool
	echo    io.Writer
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// New builds a Mailer. Sandbox mode is on when both debug and
// SandboxModeInDebug are set; EchoToStdout copies every message to stdout.
func New(s config.Settings) *Mailer {
	return newMailer(sendgrid.NewSendClient(s.Email.SendGridAPIKey), s)
}

func newMailer(client sendClient, s config.Settings) *Mailer {
	m := &Mailer{
		client:  client,
		from:    s.Email.SenderEmail,
		sandbox: s.Security.Debug && s.Email.SandboxModeInDebug,
		breaker: resilience.NewCircuitBreaker("sendgrid", 5, time.Minute),
		logger:  log.WithComponent(config.LoggerBackend).With().Str("notify_channel", "email").Logger(),
	}
	if s.Email.EchoToStdout {
		m.echo = os.Stdout
	}
	return m
}

// Sandbox reports whether SendGrid will validate without delivering.
func (m *Mailer) Sandbox() bool { return m.sandbox }

// Build converts msg into a SendGrid v3 payload.
func (m *Mailer) Build(msg Message) (*sgmail.SGMailV3, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	v3 := sgmail.NewV3Mail()
	v3.SetFrom(sgmail.NewEmail("", m.from))
	v3.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, addr := range msg.To {
		p.AddTos(sgmail.NewEmail("", addr))
	}
	v3.AddPersonalizations(p)

	if msg.Text != "" {
		v3.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	if m.sandbox {
		settings := sgmail.NewMailSettings()
		settings.SetSandboxMode(sgmail.NewSetting(true))
		v3.SetMailSettings(settings)
	}
	return v3, nil
}

// Send delivers msg. SendGrid answers 2xx on acceptance.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	ctx, span := telemetry.Tracer("backend/mail").Start(ctx, "mail.send")
	span.SetAttributes(telemetry.NotifyAttributes("email", m.sandbox)...)
	defer span.End()

	v3, err := m.Build(msg)
	if err != nil {
		metrics.IncNotification("email", "error")
		return err
	}
	if m.echo != nil {
		m.writeEcho(msg)
	}

	// Only transport errors and 5xx responses count against the breaker.
	var resp *rest.Response
	err = m.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = m.client.SendWithContext(ctx, v3)
		if err == nil && resp.StatusCode >= http.StatusInternalServerError {
			return rejected(resp)
		}
		return err
	})
	if err != nil && !errors.Is(err, ErrRejected) {
		metrics.IncNotification("email", "error")
		telemetry.RecordError(span, err, "email")
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := rejected(resp)
		metrics.IncNotification("email", "error")
		telemetry.RecordError(span, err, "email")
		reqLog := log.WithContext(ctx, m.logger)
		reqLog.Error().Int("status", resp.StatusCode).Msg("email rejected")
		return err
	}
	reqLog := log.WithContext(ctx, m.logger)
	reqLog.Info().
		Int("recipients", len(msg.To)).
		Bool("sandbox", m.sandbox).
		Msg("email sent")
	metrics.IncNotification("email", "sent")
	return nil
}

func rejected(resp *rest.Response) error {
	return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, resp.Body)
}

func (m *Mailer) writeEcho(msg Message) {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", m.from)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n\n", msg.Subject)
	b.WriteString(msg.Text)
	b.WriteString("\n-------------------------------------------------------------------------------\n")
	if _, err := io.WriteString(m.echo, b.String()); err != nil {
		m.logger.Warn().Err(err).Msg("email echo failed")
	}
	metrics.IncNotification("email", "echoed")
}
