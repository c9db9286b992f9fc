// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/gorilla/sessions"
)

const (
	// SessionCookieName is the cookie carrying the signed session.
	SessionCookieName = "sessionid"
	// SessionUserKey holds the user ID of a session-authenticated caller.
	SessionUserKey = "_auth_user_id"

	sessionMaxAge = 14 * 24 * time.Hour
)

// Session is the per-request view of a cookie session. Writes mark it
// modified; only modified sessions are written back.
type Session struct {
	mu       sync.Mutex
	raw      *sessions.Session
	modified bool
}

// Get returns the string stored under key.
func (s *Session) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.raw.Values[key].(string)
	return v, ok
}

func (s *Session) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw.Values[key] = value
	s.modified = true
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.raw.Values[key]; ok {
		delete(s.raw.Values, key)
		s.modified = true
	}
}

// Flush drops every value and expires the cookie.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.raw.Values {
		delete(s.raw.Values, k)
	}
	opts := sessions.Options{Path: "/"}
	if s.raw.Options != nil {
		opts = *s.raw.Options
	}
	opts.MaxAge = -1
	s.raw.Options = &opts
	s.modified = true
}

// IsNew reports whether the request carried no valid session cookie.
func (s *Session) IsNew() bool {
	return s.raw.IsNew
}

func (s *Session) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

type sessionKey struct{}

// SessionFromContext returns the request session, or nil when the sessions
// stage is not installed.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

func newSessionStore(s config.Settings) *sessions.CookieStore {
	store := sessions.NewCookieStore(
		deriveKey(s.Security.SecretKey, "sessions.hash"),
		deriveKey(s.Security.SecretKey, "sessions.block"),
	)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   s.Security.Production,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(store.Options.MaxAge)
	return store
}

func sessionsStage(s config.Settings, deps Deps) (Middleware, error) {
	store := deps.SessionStore
	if store == nil {
		store = newSessionStore(s)
	}
	logger := log.WithComponent(config.LoggerCore)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := store.Get(r, SessionCookieName)
			if err != nil {
				// Tampered or undecodable cookie: the store hands back a fresh session.
				reqLog := log.WithContext(r.Context(), logger)
				reqLog.Debug().Err(err).Msg("discarding invalid session cookie")
			}
			if raw == nil {
				raw = sessions.NewSession(store, SessionCookieName)
				raw.IsNew = true
				raw.Options = &sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode}
			}
			sess := &Session{raw: raw}
			sw := &sessionWriter{ResponseWriter: w}
			sw.save = func() {
				if !sess.Modified() {
					return
				}
				if err := raw.Save(r, w); err != nil {
					reqLog := log.WithContext(r.Context(), logger)
					reqLog.Error().Err(err).Msg("failed to save session")
				}
			}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
			sw.commit()
		})
	}, nil
}

// sessionWriter persists the session right before the response headers go out.
type sessionWriter struct {
	http.ResponseWriter
	save      func()
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	w.save()
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
