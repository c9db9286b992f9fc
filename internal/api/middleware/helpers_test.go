// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/config"
	"github.com/stretchr/testify/require"
)

func testSettings(production bool) config.Settings {
	s := config.Defaults("/srv/app")
	s.Security.SecretKey = "test-secret-key-0123456789"
	s.Security.Production = production
	return config.ApplyProfile(s)
}

func testDeps(t *testing.T, s config.Settings) Deps {
	t.Helper()
	tokens, err := auth.NewTokens(s.Token)
	require.NoError(t, err)
	return Deps{Tokens: tokens, TokenStore: auth.NewMemoryStore()}
}

// newTestRouter builds the full stack with h mounted on every path.
func newTestRouter(t *testing.T, s config.Settings, deps Deps, h http.HandlerFunc) http.Handler {
	t.Helper()
	r, err := NewRouter(s, deps)
	require.NoError(t, err)
	r.HandleFunc("/*", h)
	return r
}

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
