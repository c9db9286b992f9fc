// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/ManuGH/backend/internal/auth"
	"github.com/gorilla/sessions"
)

// BasicVerifier checks HTTP basic credentials and returns the user ID.
type BasicVerifier interface {
	VerifyBasic(ctx context.Context, username, password string) (string, error)
}

// Deps are the collaborators stages need beyond Settings.
type Deps struct {
	// Tokens and TokenStore back the "token" authentication class.
	Tokens     *auth.Tokens
	TokenStore auth.Store
	// Basic backs the "basic" authentication class; nil ignores basic credentials.
	Basic BasicVerifier
	// SessionStore overrides the cookie store derived from the secret key.
	SessionStore sessions.Store
	// CSRFExempt lists path prefixes served without CSRF checks.
	CSRFExempt []string
}

// deriveKey returns a 32 byte key bound to purpose, so one secret can sign
// sessions and CSRF cookies independently.
func deriveKey(secret, purpose string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("backend.middleware." + purpose))
	return mac.Sum(nil)
}
