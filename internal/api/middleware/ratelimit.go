// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/backend/internal/log"
	"github.com/go-chi/httprate"
)

// DefaultAuthRequestsPerMinute bounds login and code requests per client IP.
const DefaultAuthRequestsPerMinute = 10

// RateLimit limits requests per client IP over a sliding window. Rejected
// requests get 429 with Retry-After set to the window length.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(window.Round(time.Second).Seconds()))
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			reqLog := log.WithContext(r.Context(), log.WithComponent("api"))
			reqLog.Warn().
				Str(log.FieldEvent, "request.rate_limited").
				Str(log.FieldPath, r.URL.Path).
				Msg("rate limit exceeded")
			w.Header().Set("Retry-After", retryAfter)
			writeDetail(w, http.StatusTooManyRequests, "Request was throttled.")
		}),
	)
}
