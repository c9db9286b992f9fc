// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"

	"github.com/ManuGH/backend/internal/config"
)

const hstsValue = "max-age=15552000; includeSubDomains"

// IsSecure reports whether r arrived over TLS, directly or behind a proxy that
// sets the configured header.
func IsSecure(r *http.Request, proxy *config.HeaderMatch) bool {
	if r.TLS != nil {
		return true
	}
	return proxy != nil && r.Header.Get(proxy.Header) == proxy.Value
}

// securityStage adds transport and content-sniffing headers. HSTS is only sent
// in production and only on secure requests.
func securityStage(s config.Settings, _ Deps) (Middleware, error) {
	proxy := s.Security.ProxySSLHeader
	production := s.Security.Production
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if production && IsSecure(r, proxy) {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}, nil
}

// clickjackingStage sets X-Frame-Options. Handlers may override it.
func clickjackingStage(s config.Settings, _ Deps) (Middleware, error) {
	value := s.Security.FrameOptions
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if w.Header().Get("X-Frame-Options") == "" {
				w.Header().Set("X-Frame-Options", value)
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}
