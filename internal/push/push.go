// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package push delivers mobile push notifications through Firebase Cloud
// Messaging.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
	"github.com/ManuGH/backend/internal/resilience"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultEndpoint is the FCM HTTP send endpoint authorised by a server key.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// MaxTokens is the most device tokens FCM accepts in one request.
const MaxTokens = 1000

var (
	ErrNoTokens      = errors.New("notification has no device tokens")
	ErrTooManyTokens = fmt.Errorf("notification has more than %d device tokens", MaxTokens)
	ErrEmptyMessage  = errors.New("notification has neither title, body nor data")
	ErrRejected      = errors.New("fcm rejected the notification")
	ErrNotConfigured = errors.New("fcm server token is not configured")
	errServerFailure = errors.New("fcm server error")
)

// Notification is one message fanned out to a set of devices.
type Notification struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

func (n Notification) check() error {
	switch {
	case len(n.Tokens) == 0:
		return ErrNoTokens
	case len(n.Tokens) > MaxTokens:
		return ErrTooManyTokens
	case n.Title == "" && n.Body == "" && len(n.Data) == 0:
		return ErrEmptyMessage
	}
	return nil
}

// Result counts per-device outcomes reported by FCM. Failed holds the
// tokens FCM refused along with its error code, e.g. NotRegistered.
type Result struct {
	Success int               `json:"success"`
	Failure int               `json:"failure"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) (Result, error)
}

type fcmPayload struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    *fcmNotification  `json:"notification,omitempty"`
	Data            map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// FCMSender posts notifications to FCM with the server token.
type FCMSender struct {
	client   *http.Client
	endpoint string
	token    string
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// NewFCMSender builds a sender posting to endpoint, or DefaultEndpoint when empty.
func NewFCMSender(token, endpoint string) (*FCMSender, error) {
	if token == "" {
		return nil, ErrNotConfigured
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &FCMSender{
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint: endpoint,
		token:    token,
		breaker:  resilience.NewCircuitBreaker("fcm", 5, time.Minute),
		logger:   log.WithComponent(config.LoggerBackend).With().Str("notify_channel", "push").Logger(),
	}, nil
}

// Send posts n. Transport errors and 5xx responses count against the
// breaker; other non-2xx answers return ErrRejected.
func (s *FCMSender) Send(ctx context.Context, n Notification) (Result, error) {
	ctx, span := telemetry.Tracer("backend/push").Start(ctx, "push.send")
	span.SetAttributes(telemetry.NotifyAttributes("push", false)...)
	defer span.End()

	if err := n.check(); err != nil {
		metrics.IncNotification("push", "error")
		return Result{}, err
	}
	body, err := json.Marshal(payloadFor(n))
	if err != nil {
		metrics.IncNotification("push", "error")
		return Result{}, fmt.Errorf("encode notification: %w", err)
	}

	var (
		status int
		raw    []byte
	)
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		status, raw, err = s.post(ctx, body)
		if err == nil && status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", errServerFailure, status)
		}
		return err
	})
	if err != nil {
		metrics.IncNotification("push", "error")
		telemetry.RecordError(span, err, "push")
		reqLog := log.WithContext(ctx, s.logger)
		reqLog.Error().Err(err).Msg("push delivery failed")
		return Result{}, fmt.Errorf("send push: %w", err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		err := fmt.Errorf("%w: status %d: %s", ErrRejected, status, bytes.TrimSpace(raw))
		metrics.IncNotification("push", "error")
		telemetry.RecordError(span, err, "push")
		reqLog := log.WithContext(ctx, s.logger)
		reqLog.Error().Int("status", status).Msg("push rejected")
		return Result{}, err
	}

	var resp fcmResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		metrics.IncNotification("push", "error")
		return Result{}, fmt.Errorf("decode fcm response: %w", err)
	}
	res := resultFrom(n.Tokens, resp)

	reqLog := log.WithContext(ctx, s.logger)
	reqLog.Info().
		Int("devices", len(n.Tokens)).
		Int("success", res.Success).
		Int("failure", res.Failure).
		Msg("push sent")
	metrics.IncNotification("push", "sent")
	return res, nil
}

func (s *FCMSender) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "key="+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read fcm response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func payloadFor(n Notification) fcmPayload {
	p := fcmPayload{RegistrationIDs: n.Tokens, Data: n.Data}
	if n.Title != "" || n.Body != "" {
		p.Notification = &fcmNotification{Title: n.Title, Body: n.Body}
	}
	return p
}

// resultFrom pairs FCM's per-message results with the tokens in request order.
func resultFrom(tokens []string, resp fcmResponse) Result {
	res := Result{Success: resp.Success, Failure: resp.Failure}
	for i, r := range resp.Results {
		if r.Error == "" || i >= len(tokens) {
			continue
		}
		if res.Failed == nil {
			res.Failed = make(map[string]string)
		}
		res.Failed[tokens[i]] = r.Error
	}
	return res
}

// LogSender writes notifications to the log instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{logger: log.WithComponent(config.LoggerBackend).With().Str("notify_channel", "push").Logger()}
}

func (s *LogSender) Send(ctx context.Context, n Notification) (Result, error) {
	if err := n.check(); err != nil {
		return Result{}, err
	}
	reqLog := log.WithContext(ctx, s.logger)
	reqLog.Info().
		Int("devices", len(n.Tokens)).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("push echoed")
	metrics.IncNotification("push", "echoed")
	return Result{Success: len(n.Tokens)}, nil
}

// New picks the FCM sender when a server token is configured and the log
// sender otherwise.
func New(s config.Settings) Sender {
	sender, err := NewFCMSender(s.Push.FCMToken, "")
	if err != nil {
		return NewLogSender()
	}
	return sender
}
