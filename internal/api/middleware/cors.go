// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/ManuGH/backend/internal/config"
	"github.com/go-chi/cors"
)

// corsAllowedMethods are the methods advertised on preflight responses.
var corsAllowedMethods = []string{
	http.MethodDelete,
	http.MethodGet,
	http.MethodOptions,
	http.MethodPatch,
	http.MethodPost,
	http.MethodPut,
}

const corsMaxAge = 86400

type originalRefererKey struct{}

// corsStage answers preflight requests and sets Access-Control-* headers.
// With ReplaceHTTPSReferer, a secure request from an allowed origin has its
// Referer rewritten to this host so the CSRF stage accepts it; the
// cors_post_csrf stage puts the original back.
func corsStage(s config.Settings, _ Deps) (Middleware, error) {
	allowed := originAllowed(s.CORS)
	handler := cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool { return allowed(origin) },
		AllowedMethods:  corsAllowedMethods,
		AllowedHeaders:  s.CORS.AllowHeaders,
		MaxAge:          corsMaxAge,
	})
	if !s.CORS.ReplaceHTTPSReferer {
		return handler, nil
	}

	proxy := s.Security.ProxySSLHeader
	return func(next http.Handler) http.Handler {
		return handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			referer := r.Header.Get("Referer")
			if origin != "" && referer != "" && IsSecure(r, proxy) && allowed(origin) {
				if _, done := r.Context().Value(originalRefererKey{}).(string); !done {
					r = r.Clone(context.WithValue(r.Context(), originalRefererKey{}, referer))
					r.Header.Set("Referer", "https://"+r.Host+"/")
				}
			}
			next.ServeHTTP(w, r)
		}))
	}, nil
}

// corsPostCSRFStage restores a Referer replaced by the cors stage.
func corsPostCSRFStage(_ config.Settings, _ Deps) (Middleware, error) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if original, ok := r.Context().Value(originalRefererKey{}).(string); ok {
				r = r.Clone(r.Context())
				r.Header.Set("Referer", original)
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// originAllowed returns the origin policy. An empty whitelist without
// OriginAllowAll allows nothing.
func originAllowed(c config.CORSConfig) func(string) bool {
	if c.OriginAllowAll {
		return func(string) bool { return true }
	}
	whitelist := make([]string, 0, len(c.OriginWhitelist))
	for _, o := range c.OriginWhitelist {
		whitelist = append(whitelist, strings.TrimSuffix(strings.ToLower(o), "/"))
	}
	return func(origin string) bool {
		return slices.Contains(whitelist, strings.TrimSuffix(strings.ToLower(origin), "/"))
	}
}

// trustedOriginHosts returns the host part of each whitelisted origin.
func trustedOriginHosts(c config.CORSConfig) []string {
	out := make([]string, 0, len(c.OriginWhitelist))
	for _, o := range c.OriginWhitelist {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
