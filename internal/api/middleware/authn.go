// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
)

// Authentication class and permission names understood by the auth stage.
const (
	AuthClassToken   = "token"
	AuthClassBasic   = "basic"
	AuthClassSession = "session"

	PermissionAllowAny        = "allow_any"
	PermissionIsAuthenticated = "is_authenticated"
)

var errBadCredentials = errors.New("invalid username/password")

// authenticator resolves a principal. handled is true when the request carried
// credentials for this class, whether or not they were valid.
type authenticator func(r *http.Request) (p *auth.Principal, handled bool, err error)

// authStage tries each configured authentication class in order and attaches
// the first principal found. Invalid credentials are rejected; missing
// credentials leave the request anonymous unless a permission demands a user.
func authStage(s config.Settings, deps Deps) (Middleware, error) {
	authenticators := make([]authenticator, 0, len(s.REST.AuthenticationClasses))
	challenge := ""
	for _, class := range s.REST.AuthenticationClasses {
		switch class {
		case AuthClassToken:
			if deps.Tokens == nil || deps.TokenStore == nil {
				return nil, fmt.Errorf("%w: token authentication needs Tokens and TokenStore", ErrMissingDependency)
			}
			authenticators = append(authenticators, tokenAuthenticator(deps.Tokens, deps.TokenStore))
			if challenge == "" {
				challenge = auth.HeaderPrefix
			}
		case AuthClassBasic:
			if deps.Basic != nil {
				authenticators = append(authenticators, basicAuthenticator(deps.Basic))
				if challenge == "" {
					challenge = `Basic realm="api"`
				}
			}
		case AuthClassSession:
			authenticators = append(authenticators, sessionAuthenticator)
		default:
			return nil, fmt.Errorf("unknown authentication class %q", class)
		}
	}

	requireUser := false
	for _, perm := range s.REST.PermissionClasses {
		switch perm {
		case PermissionAllowAny:
		case PermissionIsAuthenticated:
			requireUser = true
		default:
			return nil, fmt.Errorf("unknown permission class %q", perm)
		}
	}

	logger := log.WithComponent(config.LoggerCore)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, authn := range authenticators {
				p, handled, err := authn(r)
				if err != nil && !isCredentialError(err) {
					reqLog := log.WithContext(r.Context(), logger)
					reqLog.Error().Err(err).Msg("authentication backend failed")
					writeDetail(w, http.StatusInternalServerError, "Internal server error.")
					return
				}
				if err != nil {
					reqLog := log.WithContext(r.Context(), logger)
					reqLog.Info().
						Str(log.FieldEvent, "auth.rejected").
						Err(err).
						Msg("authentication failed")
					if challenge != "" {
						w.Header().Set("WWW-Authenticate", challenge)
					}
					writeDetail(w, http.StatusUnauthorized, authFailureDetail(err))
					return
				}
				if handled {
					r = r.WithContext(auth.WithPrincipal(r.Context(), p))
					break
				}
			}

			if requireUser && auth.PrincipalFromContext(r.Context()) == nil {
				if challenge != "" {
					w.Header().Set("WWW-Authenticate", challenge)
				}
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func isCredentialError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenExpired) || errors.Is(err, errBadCredentials)
}

func authFailureDetail(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "Token has expired."
	case errors.Is(err, auth.ErrInvalidToken):
		return "Invalid token."
	default:
		return "Invalid username/password."
	}
}

func tokenAuthenticator(tokens *auth.Tokens, store auth.Store) authenticator {
	return func(r *http.Request) (*auth.Principal, bool, error) {
		tok := auth.ExtractToken(r)
		if tok == "" {
			return nil, false, nil
		}
		p, err := tokens.Authenticate(r.Context(), store, tok)
		if err != nil {
			return nil, true, err
		}
		return p, true, nil
	}
}

func basicAuthenticator(v BasicVerifier) authenticator {
	return func(r *http.Request) (*auth.Principal, bool, error) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			return nil, false, nil
		}
		id, err := v.VerifyBasic(r.Context(), user, pass)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %w", errBadCredentials, err)
		}
		return &auth.Principal{UserID: id}, true, nil
	}
}

// sessionAuthenticator reads the user stored by a login view. Without the
// sessions stage it never matches.
func sessionAuthenticator(r *http.Request) (*auth.Principal, bool, error) {
	sess := SessionFromContext(r.Context())
	if sess == nil {
		return nil, false, nil
	}
	id, ok := sess.Get(SessionUserKey)
	if !ok || id == "" {
		return nil, false, nil
	}
	return &auth.Principal{UserID: id}, true, nil
}
