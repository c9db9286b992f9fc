// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
)

// commonStage rejects requests whose Host does not match AllowedHosts.
func commonStage(s config.Settings, _ Deps) (Middleware, error) {
	patterns := make([]string, len(s.Security.AllowedHosts))
	for i, p := range s.Security.AllowedHosts {
		patterns[i] = strings.ToLower(p)
	}
	logger := log.WithComponent(config.LoggerCore)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := requestHost(r.Host)
			if !HostAllowed(host, patterns) {
				reqLog := log.WithContext(r.Context(), logger)
				reqLog.Warn().
					Str(log.FieldEvent, "request.disallowed_host").
					Str("host", r.Host).
					Msg("invalid HTTP_HOST header")
				http.Error(w, "Bad Request (400)", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// HostAllowed matches host against lower-case patterns: "*" matches anything,
// ".example.com" matches example.com and its subdomains, anything else is an
// exact match.
func HostAllowed(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "."):
			if host == p[1:] || strings.HasSuffix(host, p) {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

func requestHost(hostport string) string {
	hostport = strings.ToLower(strings.TrimSpace(hostport))
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(host, "[]")
	}
	return strings.TrimSuffix(hostport, ".")
}
