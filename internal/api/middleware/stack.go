// SPDX-License-Identifier: MIT

// Package middleware builds the HTTP request pipeline from the ordered stage
// names in config.Settings.Middleware.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

var (
	ErrUnknownStage      = errors.New("unknown middleware stage")
	ErrMissingDependency = errors.New("middleware dependency missing")
)

// Middleware is a single pipeline stage.
type Middleware = func(http.Handler) http.Handler

// stageFunc builds one stage from the effective settings.
type stageFunc func(s config.Settings, deps Deps) (Middleware, error)

var stages = map[string]stageFunc{
	config.MiddlewareSecurity:     securityStage,
	config.MiddlewareSessions:     sessionsStage,
	config.MiddlewareCORS:         corsStage,
	config.MiddlewareCommon:       commonStage,
	config.MiddlewareCSRF:         csrfStage,
	config.MiddlewareCORSPostCSRF: corsPostCSRFStage,
	config.MiddlewareAuth:         authStage,
	config.MiddlewareMessages:     messagesStage,
	config.MiddlewareClickjacking: clickjackingStage,
}

// Stages returns the names of every stage this package can build, sorted.
func Stages() []string {
	out := make([]string, 0, len(stages))
	for name := range stages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Chain builds the configured stages in order. The first element wraps all
// the others.
func Chain(s config.Settings, deps Deps) ([]Middleware, error) {
	chain := make([]Middleware, 0, len(s.Middleware))
	for _, name := range s.Middleware {
		build, ok := stages[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
		}
		mw, err := build(s, deps)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", name, err)
		}
		chain = append(chain, mw)
	}
	return chain, nil
}

// NewRouter constructs a chi router with the full middleware stack applied.
func NewRouter(s config.Settings, deps Deps) (*chi.Mux, error) {
	r := chi.NewRouter()
	if err := ApplyStack(r, s, deps); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyStack installs the observability wrappers followed by the configured
// stages.
func ApplyStack(r chi.Router, s config.Settings, deps Deps) error {
	chain, err := Chain(s, deps)
	if err != nil {
		return err
	}

	// 1. Recoverer (outermost safety net)
	r.Use(chimw.Recoverer)
	// 2. RequestID (correlation early)
	r.Use(chimw.RequestID)
	// 3. Metrics (track all requests)
	r.Use(metrics.HTTPMiddleware)
	// 4. Tracing
	if s.Tracing.Enabled() {
		r.Use(OTelHTTP(telemetry.ServiceName))
	}
	// 5. Logging (wraps handlers, captures full latency)
	r.Use(log.Middleware())
	// 6. Configured stages
	r.Use(chain...)
	return nil
}
