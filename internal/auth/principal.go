// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"context"
	"time"
)

// Principal represents the authenticated identity of a caller.
type Principal struct {
	// UserID is the stable identifier of the token owner.
	UserID string

	// TokenKey is the public token prefix; safe to log.
	TokenKey string

	// Expiry is zero for tokens without TTL.
	Expiry time.Time
}

// NewPrincipal creates a Principal from a stored token record.
func NewPrincipal(rec Record) *Principal {
	return &Principal{
		UserID:   rec.UserID,
		TokenKey: rec.TokenKey,
		Expiry:   rec.Expiry,
	}
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, or nil for
// anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
