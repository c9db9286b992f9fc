// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/gorilla/csrf"
)

const (
	CSRFCookieName = "csrftoken"
	CSRFHeaderName = "X-CSRFToken"
	CSRFFieldName  = "csrfmiddlewaretoken"
)

// csrfStage enforces double-submit CSRF tokens on unsafe methods.
//
// Requests authenticated with an API token skip the check: the token is not
// ambient browser state. Requests that are not secure are checked without the
// HTTPS-only Referer rules. Paths under deps.CSRFExempt are never checked.
func csrfStage(s config.Settings, deps Deps) (Middleware, error) {
	proxy := s.Security.ProxySSLHeader
	protect := csrf.Protect(
		deriveKey(s.Security.SecretKey, "csrf"),
		csrf.CookieName(CSRFCookieName),
		csrf.RequestHeader(CSRFHeaderName),
		csrf.FieldName(CSRFFieldName),
		csrf.Path("/"),
		csrf.Secure(s.Security.Production),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.TrustedOrigins(trustedOriginHosts(s.CORS)),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.ExtractToken(r) != "" || csrfExempt(r.URL.Path, deps.CSRFExempt) {
				r = csrf.UnsafeSkipCheck(r)
			}
			if !IsSecure(r, proxy) {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}, nil
}

func csrfExempt(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// CSRFToken returns the masked token to embed in forms or the X-CSRFToken header.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	reason := csrf.FailureReason(r)
	msg := "CSRF verification failed."
	if reason != nil {
		msg = "CSRF Failed: " + reason.Error()
	}
	reqLog := log.WithContext(r.Context(), log.WithComponent(config.LoggerCore))
	reqLog.Warn().
		Str(log.FieldEvent, "request.csrf_failed").
		Str(log.FieldPath, r.URL.Path).
		Msg(msg)
	writeDetail(w, http.StatusForbidden, msg)
}

// writeDetail writes {"detail": msg} with the given status.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}
