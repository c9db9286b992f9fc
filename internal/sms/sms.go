// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sms sends text messages through Twilio.
package sms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
	"github.com/ManuGH/backend/internal/ratelimit"
	"github.com/ManuGH/backend/internal/resilience"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var (
	ErrInvalidNumber = errors.New("phone number must be in E.164 format")
	ErrRateLimited   = errors.New("too many messages to this number")
	ErrEmptyBody     = errors.New("message body is empty")
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidNumber reports whether number is an E.164 phone number.
func ValidNumber(number string) bool {
	return e164.MatchString(number)
}

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// messageCreator is the subset of the Twilio API used here.
type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioSender posts messages through the Twilio REST API.
type TwilioSender struct {
	api     messageCreator
	from    string
	limiter *ratelimit.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewTwilioSender builds a sender from the SMS settings.
func NewTwilioSender(cfg config.SMSConfig, limiter *ratelimit.Limiter) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioSender(client.Api, cfg.FromNumber, limiter)
}

func newTwilioSender(api messageCreator, from string, limiter *ratelimit.Limiter) *TwilioSender {
	return &TwilioSender{
		api:     api,
		from:    from,
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker("twilio", 5, time.Minute),
		logger:  log.WithComponent(config.LoggerBackend).With().Str("notify_channel", "sms").Logger(),
	}
}

// Send validates to, applies the per-destination limit and posts the message.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	_, span := telemetry.Tracer("backend/sms").Start(ctx, "sms.send")
	span.SetAttributes(telemetry.NotifyAttributes("sms", false)...)
	defer span.End()

	if err := check(to, body); err != nil {
		metrics.IncNotification("sms", "error")
		return err
	}
	if s.limiter != nil && !s.limiter.Allow(to) {
		metrics.IncNotification("sms", "error")
		telemetry.RecordError(span, ErrRateLimited, "sms")
		return ErrRateLimited
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	var msg *twilioapi.ApiV2010Message
	err := s.breaker.Execute(ctx, func(context.Context) error {
		var err error
		msg, err = s.api.CreateMessage(params)
		return err
	})
	if err != nil {
		metrics.IncNotification("sms", "error")
		telemetry.RecordError(span, err, "sms")
		reqLog := log.WithContext(ctx, s.logger)
		reqLog.Error().Err(err).Msg("sms delivery failed")
		return fmt.Errorf("send sms: %w", err)
	}
	reqLog := log.WithContext(ctx, s.logger)
	evt := reqLog.Info()
	if msg != nil && msg.Sid != nil {
		evt = evt.Str("sid", *msg.Sid)
	}
	evt.Msg("sms sent")
	metrics.IncNotification("sms", "sent")
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: log.WithComponent(config.LoggerBackend).With().Str("notify_channel", "sms").Logger()}
}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	if err := check(to, body); err != nil {
		return err
	}
	reqLog := log.WithContext(ctx, s.logger)
	reqLog.Info().Str("to", to).Str("body", body).Msg("sms echoed")
	metrics.IncNotification("sms", "echoed")
	return nil
}

// New picks the Twilio sender when credentials are configured and the log
// sender otherwise.
func New(s config.Settings) Sender {
	if s.SMS.AccountSID == "" || s.SMS.AuthToken == "" || s.SMS.FromNumber == "" {
		return NewLogSender()
	}
	return NewTwilioSender(s.SMS, ratelimit.New(ratelimit.SMSConfig()))
}

func check(to, body string) error {
	if !ValidNumber(to) {
		return fmt.Errorf("%w: %q", ErrInvalidNumber, to)
	}
	if body == "" {
		return ErrEmptyBody
	}
	return nil
}
