// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// HeaderPrefix is the Authorization scheme carrying API tokens.
const HeaderPrefix = "Token"

// minRefreshInterval bounds how often AutoRefresh rewrites a token expiry.
const minRefreshInterval = time.Minute

// Record is the persisted form of an issued token. The raw token is never stored.
type Record struct {
	Digest   string
	TokenKey string
	UserID   string
	Created  time.Time
	Expiry   time.Time // zero: never expires
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return !r.Expiry.IsZero() && now.After(r.Expiry)
}

// Store persists token records, looked up by TokenKey.
type Store interface {
	Save(ctx context.Context, rec Record) error
	ByTokenKey(ctx context.Context, tokenKey string) ([]Record, error)
	Delete(ctx context.Context, digest string) error
}

// Tokens issues and authenticates API tokens according to config.TokenConfig.
type Tokens struct {
	cfg     config.TokenConfig
	newHash func() hash.Hash
	now     func() time.Time
}

// NewTokens validates cfg and returns a token service.
func NewTokens(cfg config.TokenConfig) (*Tokens, error) {
	var h func() hash.Hash
	switch strings.ToLower(cfg.SecureHashAlgorithm) {
	case "sha512":
		h = sha512.New
	case "sha256":
		h = sha256.New
	default:
		return nil, fmt.Errorf("unsupported token hash algorithm %q", cfg.SecureHashAlgorithm)
	}
	if cfg.CharacterLength <= 0 || cfg.CharacterLength%2 != 0 {
		return nil, fmt.Errorf("token character length must be a positive even number, got %d", cfg.CharacterLength)
	}
	if cfg.KeyLength <= 0 || cfg.KeyLength >= cfg.CharacterLength {
		return nil, fmt.Errorf("token key length %d out of range", cfg.KeyLength)
	}
	return &Tokens{cfg: cfg, newHash: h, now: time.Now}, nil
}

// Issue creates a token for userID and stores its digest. The raw token is
// returned once and cannot be recovered from the store.
func (t *Tokens) Issue(ctx context.Context, store Store, userID string) (string, Record, error) {
	buf := make([]byte, t.cfg.CharacterLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", Record{}, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	digest, err := t.Digest(token)
	if err != nil {
		return "", Record{}, err
	}
	now := t.now().UTC()
	rec := Record{
		Digest:   digest,
		TokenKey: token[:t.cfg.KeyLength],
		UserID:   userID,
		Created:  now,
	}
	if t.cfg.TTL > 0 {
		rec.Expiry = now.Add(t.cfg.TTL)
	}
	if err := store.Save(ctx, rec); err != nil {
		return "", Record{}, fmt.Errorf("save token: %w", err)
	}
	return token, rec, nil
}

// Digest hashes the hex-decoded token with the configured algorithm.
func (t *Tokens) Digest(token string) (string, error) {
	raw, err := hex.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: not hex encoded", ErrInvalidToken)
	}
	h := t.newHash()
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Authenticate resolves a raw token to its principal. Expired records are
// deleted on sight. With AutoRefresh the expiry slides forward by TTL.
func (t *Tokens) Authenticate(ctx context.Context, store Store, token string) (*Principal, error) {
	if len(token) != t.cfg.CharacterLength {
		return nil, ErrInvalidToken
	}
	digest, err := t.Digest(token)
	if err != nil {
		return nil, err
	}
	candidates, err := store.ByTokenKey(ctx, token[:t.cfg.KeyLength])
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}

	now := t.now().UTC()
	for _, rec := range candidates {
		if subtle.ConstantTimeCompare([]byte(rec.Digest), []byte(digest)) != 1 {
			continue
		}
		if rec.Expired(now) {
			if err := store.Delete(ctx, rec.Digest); err != nil {
				clog := log.WithComponent(config.LoggerBackend)
				clog.Warn().Err(err).Msg("failed to delete expired token")
			}
			return nil, ErrTokenExpired
		}
		if t.cfg.AutoRefresh && t.cfg.TTL > 0 {
			next := now.Add(t.cfg.TTL)
			if next.Sub(rec.Expiry) > minRefreshInterval {
				rec.Expiry = next
				if err := store.Save(ctx, rec); err != nil {
					return nil, fmt.Errorf("refresh token: %w", err)
				}
			}
		}
		return NewPrincipal(rec), nil
	}
	return nil, ErrInvalidToken
}

// ExtractToken retrieves the API token from "Authorization: Token <token>".
// The scheme is matched case-insensitively.
func ExtractToken(r *http.Request) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, HeaderPrefix) {
		return ""
	}
	return strings.TrimSpace(value)
}
