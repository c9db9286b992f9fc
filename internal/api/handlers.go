// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/channels"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/passwords"
	"github.com/ManuGH/backend/internal/validate"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type passwordRequest struct {
	Password string         `json:"password"`
	User     passwords.User `json:"user"`
}

type passwordResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) handlePasswordRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"rules": s.deps.Passwords.HelpTexts()})
}

func (s *Server) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := s.deps.Passwords.Validate(req.Password, req.User)
	if err == nil {
		writeJSON(w, http.StatusOK, passwordResponse{Valid: true})
		return
	}
	var verr validate.ValidationError
	if !errors.As(err, &verr) {
		writeDetail(w, http.StatusInternalServerError, "A server error occurred.")
		return
	}
	msgs := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		msgs = append(msgs, e.Message)
	}
	writeJSON(w, http.StatusBadRequest, passwordResponse{Errors: msgs})
}

// publicSettings is the subset of Settings a browser client may read.
type publicSettings struct {
	LanguageCode     string                        `json:"languageCode"`
	TimeZone         string                        `json:"timeZone"`
	StaticURL        string                        `json:"staticUrl"`
	MediaURL         string                        `json:"mediaUrl"`
	CaptchaPublicKey string                        `json:"captchaPublicKey,omitempty"`
	MapWidget        config.PointFieldWidgetConfig `json:"mapWidget"`
	CSRFCookieName   string                        `json:"csrfCookieName"`
	CSRFHeaderName   string                        `json:"csrfHeaderName"`
	VerificationTTL  int                           `json:"verificationCodeTtlSeconds"`
}

func (s *Server) handlePublicSettings(w http.ResponseWriter, _ *http.Request) {
	st := s.settings
	writeJSON(w, http.StatusOK, publicSettings{
		LanguageCode:     st.I18N.LanguageCode,
		TimeZone:         st.I18N.TimeZone,
		StaticURL:        st.Static.StaticURL,
		MediaURL:         st.Static.MediaURL,
		CaptchaPublicKey: st.Captcha.PublicKey,
		MapWidget:        st.Maps.PointFieldWidget,
		CSRFCookieName:   "csrftoken",
		CSRFHeaderName:   "X-CSRFToken",
		VerificationTTL:  int(st.Auth.VerificationCodeExpiration / time.Second),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeNotAuthenticated(w)
		return
	}
	if s.deps.Uploader == nil {
		writeServiceUnavailable(w, "Storage")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "No file was submitted.")
		return
	}
	defer file.Close()

	key := path.Join("uploads", time.Now().UTC().Format("2006/01/02"), uuid.NewString()+path.Ext(header.Filename))
	name, err := s.deps.Uploader.Upload(r.Context(), key, file, header.Header.Get("Content-Type"))
	if err != nil {
		reqLog := log.WithContext(r.Context(), log.WithComponent(config.LoggerBackend))
		reqLog.Error().
			Err(err).Str(log.FieldEvent, "storage.upload_failed").Msg("upload failed")
		writeDetail(w, http.StatusBadGateway, "Upload failed.")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": name, "url": s.deps.Uploader.URL(name)})
}

func (s *Server) handleGroupSend(w http.ResponseWriter, r *http.Request) {
	if auth.PrincipalFromContext(r.Context()) == nil {
		writeNotAuthenticated(w)
		return
	}
	if s.deps.Groups == nil {
		writeServiceUnavailable(w, "Channel layer")
		return
	}
	var msg channels.Message
	if !decodeJSON(w, r, &msg) {
		return
	}
	if _, ok := msg["type"].(string); !ok {
		writeDetail(w, http.StatusBadRequest, `Message requires a string "type".`)
		return
	}
	n, err := s.deps.Groups.GroupSend(r.Context(), chi.URLParam(r, "group"), msg)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]int{"delivered": n})
	case errors.Is(err, channels.ErrInvalidName):
		writeDetail(w, http.StatusBadRequest, "Invalid group name.")
	default:
		writeDetail(w, http.StatusBadGateway, "Channel layer unavailable.")
	}
}
