// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the HTTP API behind the configured middleware stack.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/backend/internal/api/middleware"
	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/channels"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/health"
	"github.com/ManuGH/backend/internal/passwords"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 32 << 20

	// authPrefix covers the unauthenticated login endpoints, which are
	// served without CSRF checks.
	authPrefix = "/api/v1/auth/"
)

// CodeVerifier issues and checks phone verification codes.
type CodeVerifier interface {
	Request(ctx context.Context, phone string) error
	Verify(ctx context.Context, phone, code string) error
}

// Uploader stores user media.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	URL(key string) string
}

// GroupSender fans a message out to a channel group.
type GroupSender interface {
	GroupSend(ctx context.Context, group string, msg channels.Message) (int, error)
}

// Deps are the collaborators handlers use. Nil Uploader or Groups make the
// matching endpoints answer 503. AuthRequestsPerMinute limits /auth requests
// per client IP; zero means middleware.DefaultAuthRequestsPerMinute.
type Deps struct {
	Verifier   CodeVerifier
	Tokens     *auth.Tokens
	TokenStore auth.Store
	Passwords  *passwords.Policy
	Uploader   Uploader
	Groups     GroupSender
	Health     *health.Manager

	AuthRequestsPerMinute int
}

// Server holds the settings and collaborators behind the routes.
type Server struct {
	settings config.Settings
	deps     Deps
}

func New(s config.Settings, deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	if deps.AuthRequestsPerMinute <= 0 {
		deps.AuthRequestsPerMinute = middleware.DefaultAuthRequestsPerMinute
	}
	return &Server{settings: s, deps: deps}
}

// Handler builds the root router. Probes and metrics sit outside the
// middleware stack; everything else runs through it.
func (s *Server) Handler() (http.Handler, error) {
	app, err := middleware.NewRouter(s.settings, middleware.Deps{
		Tokens:     s.deps.Tokens,
		TokenStore: s.deps.TokenStore,
		CSRFExempt: []string{authPrefix},
	})
	if err != nil {
		return nil, err
	}
	s.routes(app)

	root := chi.NewRouter()
	root.Get("/healthz", s.deps.Health.ServeHealth)
	root.Get("/readyz", s.deps.Health.ServeReady)
	root.Handle("/metrics", promhttp.Handler())
	root.Mount("/", app)
	return root, nil
}

func (s *Server) routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimit(s.deps.AuthRequestsPerMinute, time.Minute))
			r.Post("/verification-code", s.handleRequestCode)
			r.Post("/token", s.handleObtainToken)
			r.Delete("/token", s.handleRevokeToken)
		})
		r.Get("/me", s.handleMe)

		r.Get("/passwords/rules", s.handlePasswordRules)
		r.Post("/passwords/validate", s.handleValidatePassword)

		r.Get("/settings/public", s.handlePublicSettings)

		r.Post("/uploads", s.handleUpload)
		r.Post("/groups/{group}/messages", s.handleGroupSend)
	})
}
