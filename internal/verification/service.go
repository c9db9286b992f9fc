// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package verification issues and checks one-time phone verification codes.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ManuGH/backend/internal/cache"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/sms"
	"github.com/rs/zerolog"
)

var (
	ErrCodeExpired     = errors.New("verification code expired or never requested")
	ErrCodeMismatch    = errors.New("verification code does not match")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrNotConfigured   = errors.New("verification code expiration is not configured")
)

const (
	// CodeDigits is the length of issued codes.
	CodeDigits = 6
	// MaxAttempts bounds wrong guesses per issued code.
	MaxAttempts = 5

	codePrefix     = "verification:code:"
	attemptsPrefix = "verification:attempts:"
)

// Service issues codes over SMS and stores them in a cache until they expire.
type Service struct {
	cache  cache.Cache
	sender sms.Sender
	ttl    time.Duration
	demo   config.AppStoreDemoConfig
	logger zerolog.Logger

	generate func() (string, error)
}

// New builds a Service. Codes live for s.Auth.VerificationCodeExpiration.
func New(s config.Settings, c cache.Cache, sender sms.Sender) (*Service, error) {
	if s.Auth.VerificationCodeExpiration <= 0 {
		return nil, ErrNotConfigured
	}
	return &Service{
		cache:    c,
		sender:   sender,
		ttl:      s.Auth.VerificationCodeExpiration,
		demo:     s.AppStoreDemo,
		logger:   log.WithComponent(config.LoggerBackend).With().Str("service", "verification").Logger(),
		generate: randomCode,
	}, nil
}

// TTL returns how long an issued code stays valid.
func (s *Service) TTL() time.Duration { return s.ttl }

func (s *Service) isDemo(phone string) bool {
	return s.demo.PhoneNumber != "" && s.demo.OTP != "" && phone == s.demo.PhoneNumber
}

// Request issues a fresh code for phone and texts it. A new request replaces
// any outstanding code and resets the attempt counter. The review demo number
// receives nothing; its fixed OTP is checked by Verify.
func (s *Service) Request(ctx context.Context, phone string) error {
	if !sms.ValidNumber(phone) {
		return fmt.Errorf("%w: %q", sms.ErrInvalidNumber, phone)
	}
	if s.isDemo(phone) {
		reqLog := log.WithContext(ctx, s.logger)
		reqLog.Info().Msg("demo number, no code sent")
		return nil
	}
	code, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, codePrefix+phone, code, s.ttl); err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if err := s.cache.Delete(ctx, attemptsPrefix+phone); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	body := fmt.Sprintf("Your verification code is %s. It expires in %s.", code, expiryText(s.ttl))
	if err := s.sender.Send(ctx, phone, body); err != nil {
		_ = s.cache.Delete(ctx, codePrefix+phone)
		return err
	}
	return nil
}

// Verify checks code against the outstanding code for phone and consumes it
// on success.
func (s *Service) Verify(ctx context.Context, phone, code string) error {
	if s.isDemo(phone) {
		if subtle.ConstantTimeCompare([]byte(code), []byte(s.demo.OTP)) == 1 {
			return nil
		}
		return ErrCodeMismatch
	}

	want, ok, err := s.cache.Get(ctx, codePrefix+phone)
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if !ok {
		return ErrCodeExpired
	}

	attempts, err := s.cache.Incr(ctx, attemptsPrefix+phone, s.ttl)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if attempts > MaxAttempts {
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(want)) != 1 {
		reqLog := log.WithContext(ctx, s.logger)
		reqLog.Warn().Int64("attempts", attempts).Msg("verification code mismatch")
		return ErrCodeMismatch
	}

	// A matched code is spent; it must not outlive this call.
	if err := s.cache.Delete(ctx, codePrefix+phone); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	if err := s.cache.Delete(ctx, attemptsPrefix+phone); err != nil {
		reqLog := log.WithContext(ctx, s.logger)
		reqLog.Warn().Err(err).Msg("reset attempts after verification failed")
	}
	return nil
}

// expiryText renders d for the SMS body in whole minutes, or seconds below a minute.
func expiryText(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Round(time.Second) / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}
