// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTokenConfig() config.TokenConfig {
	return config.Defaults("").Token
}

func TestNewTokens_RejectsBadConfig(t *testing.T) {
	cfg := defaultTokenConfig()
	cfg.SecureHashAlgorithm = "md5"
	_, err := NewTokens(cfg)
	assert.Error(t, err)

	cfg = defaultTokenConfig()
	cfg.CharacterLength = 63
	_, err = NewTokens(cfg)
	assert.Error(t, err)

	cfg = defaultTokenConfig()
	cfg.KeyLength = 64
	_, err = NewTokens(cfg)
	assert.Error(t, err)
}

func TestIssueAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	tokens, err := NewTokens(defaultTokenConfig())
	require.NoError(t, err)
	store := NewMemoryStore()

	token, rec, err := tokens.Issue(ctx, store, "user-42")
	require.NoError(t, err)
	assert.Len(t, token, 64)
	assert.Equal(t, token[:8], rec.TokenKey)
	assert.True(t, rec.Expiry.IsZero(), "no TTL means no expiry")

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	sum := sha512.Sum512(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.Digest)

	p, err := tokens.Authenticate(ctx, store, token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", p.UserID)
	assert.Equal(t, rec.TokenKey, p.TokenKey)

	// Same prefix, different tail.
	last := "0"
	if token[63] == '0' {
		last = "1"
	}
	forged := token[:63] + last
	_, err = tokens.Authenticate(ctx, store, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Authenticate(ctx, store, "short")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_ExpiredIsDeleted(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTokenConfig()
	cfg.TTL = time.Hour
	tokens, err := NewTokens(cfg)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }
	store := NewMemoryStore()

	token, rec, err := tokens.Issue(ctx, store, "user-1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), rec.Expiry)

	now = now.Add(2 * time.Hour)
	_, err = tokens.Authenticate(ctx, store, token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, 0, store.Len())
}

func TestAuthenticate_AutoRefresh(t *testing.T) {
	ctx := context.Background()
	cfg := defaultTokenConfig()
	cfg.TTL = time.Hour
	cfg.AutoRefresh = true
	tokens, err := NewTokens(cfg)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }
	store := NewMemoryStore()
	token, _, err := tokens.Issue(ctx, store, "user-1")
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	p, err := tokens.Authenticate(ctx, store, token)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), p.Expiry)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Token abc123", "abc123"},
		{"token  abc123 ", "abc123"},
		{"Bearer abc123", ""},
		{"", ""},
		{"Token", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractToken(r), tt.header)
	}
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, PrincipalFromContext(ctx))
	p := &Principal{UserID: "u"}
	assert.Same(t, p, PrincipalFromContext(WithPrincipal(ctx, p)))
}
