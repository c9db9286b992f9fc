// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/sms"
	"github.com/ManuGH/backend/internal/verification"
)

type codeRequest struct {
	Phone string `json:"phone"`
}

type tokenRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type tokenResponse struct {
	Token  string     `json:"token"`
	Expiry *time.Time `json:"expiry"`
}

type meResponse struct {
	UserID   string     `json:"userId"`
	TokenKey string     `json:"tokenKey"`
	Expiry   *time.Time `json:"expiry"`
}

func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.deps.Verifier.Request(r.Context(), req.Phone)
	switch {
	case err == nil:
		writeDetail(w, http.StatusAccepted, "Verification code sent.")
	case errors.Is(err, sms.ErrInvalidNumber):
		writeDetail(w, http.StatusBadRequest, "Enter a valid phone number.")
	case errors.Is(err, sms.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, "Request was throttled.")
	default:
		reqLog := log.WithContext(r.Context(), log.WithComponent(config.LoggerBackend))
		reqLog.Error().
			Err(err).Str(log.FieldEvent, "auth.code_request_failed").Msg("verification code request failed")
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
	}
}

func (s *Server) handleObtainToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.deps.Verifier.Verify(r.Context(), req.Phone, req.Code)
	switch {
	case err == nil:
	case errors.Is(err, verification.ErrCodeMismatch), errors.Is(err, verification.ErrCodeExpired):
		writeDetail(w, http.StatusBadRequest, "Invalid or expired verification code.")
		return
	case errors.Is(err, verification.ErrTooManyAttempts):
		writeDetail(w, http.StatusTooManyRequests, "Too many attempts. Request a new code.")
		return
	default:
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}

	token, rec, err := s.deps.Tokens.Issue(r.Context(), s.deps.TokenStore, req.Phone)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, Expiry: expiryPtr(rec.Expiry)})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if auth.PrincipalFromContext(r.Context()) == nil {
		writeNotAuthenticated(w)
		return
	}
	token := auth.ExtractToken(r)
	if token == "" {
		writeDetail(w, http.StatusBadRequest, "Only token sessions can be revoked.")
		return
	}
	digest, err := s.deps.Tokens.Digest(token)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Only token sessions can be revoked.")
		return
	}
	if err := s.deps.TokenStore.Delete(r.Context(), digest); err != nil {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeNotAuthenticated(w)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: p.UserID, TokenKey: p.TokenKey, Expiry: expiryPtr(p.Expiry)})
}

func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
