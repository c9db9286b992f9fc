// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fcmServer struct {
	*httptest.Server
	calls  atomic.Int32
	auth   atomic.Value
	body   atomic.Value
	status int
	reply  string
}

func newFCMServer(t *testing.T, status int, reply string) *fcmServer {
	t.Helper()
	f := &fcmServer{status: status, reply: reply}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.auth.Store(r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		f.body.Store(string(raw))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.reply)
	}))
	t.Cleanup(f.Close)
	return f
}

func TestFCMSender_Send(t *testing.T) {
	srv := newFCMServer(t, http.StatusOK,
		`{"multicast_id":1,"success":1,"failure":1,"results":[{"message_id":"0:1"},{"error":"NotRegistered"}]}`)
	s, err := NewFCMSender("server-key", srv.URL)
	require.NoError(t, err)

	res, err := s.Send(context.Background(), Notification{
		Tokens: []string{"device-a", "device-b"},
		Title:  "Trip update",
		Body:   "Your driver is arriving",
		Data:   map[string]string{"trip": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failure)
	assert.Equal(t, map[string]string{"device-b": "NotRegistered"}, res.Failed)

	assert.Equal(t, "key=server-key", srv.auth.Load())
	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(srv.body.Load().(string)), &sent))
	assert.Equal(t, []any{"device-a", "device-b"}, sent["registration_ids"])
	assert.Equal(t, map[string]any{"title": "Trip update", "body": "Your driver is arriving"}, sent["notification"])
	assert.Equal(t, map[string]any{"trip": "42"}, sent["data"])
}

func TestFCMSender_DataOnly(t *testing.T) {
	srv := newFCMServer(t, http.StatusOK, `{"success":1,"failure":0,"results":[{"message_id":"0:1"}]}`)
	s, err := NewFCMSender("server-key", srv.URL)
	require.NoError(t, err)

	_, err = s.Send(context.Background(), Notification{Tokens: []string{"d"}, Data: map[string]string{"sync": "1"}})
	require.NoError(t, err)
	assert.NotContains(t, srv.body.Load().(string), `"notification"`)
}

func TestFCMSender_Rejected(t *testing.T) {
	srv := newFCMServer(t, http.StatusUnauthorized, "Unauthorized")
	s, err := NewFCMSender("wrong", srv.URL)
	require.NoError(t, err)

	n := Notification{Tokens: []string{"d"}, Body: "x"}
	for i := 0; i < 6; i++ {
		_, err = s.Send(context.Background(), n)
		require.ErrorIs(t, err, ErrRejected)
	}
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(6), srv.calls.Load(), "client errors do not open the breaker")
}

func TestFCMSender_ServerErrorsOpenBreaker(t *testing.T) {
	srv := newFCMServer(t, http.StatusServiceUnavailable, "")
	s, err := NewFCMSender("server-key", srv.URL)
	require.NoError(t, err)

	n := Notification{Tokens: []string{"d"}, Body: "x"}
	for i := 0; i < 5; i++ {
		_, err := s.Send(context.Background(), n)
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}
	_, err = s.Send(context.Background(), n)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), srv.calls.Load())
}

func TestNotification_Check(t *testing.T) {
	assert.ErrorIs(t, Notification{Body: "x"}.check(), ErrNoTokens)
	assert.ErrorIs(t, Notification{Tokens: []string{"d"}}.check(), ErrEmptyMessage)
	assert.ErrorIs(t, Notification{Tokens: make([]string, MaxTokens+1), Body: "x"}.check(), ErrTooManyTokens)
	assert.NoError(t, Notification{Tokens: []string{"d"}, Title: "t"}.check())
}

func TestNew_PicksSender(t *testing.T) {
	s := config.Defaults("")
	s.Push.FCMToken = ""
	_, ok := New(s).(*LogSender)
	assert.True(t, ok)

	s.Push.FCMToken = "server-key"
	_, ok = New(s).(*FCMSender)
	assert.True(t, ok)

	_, err := NewFCMSender("", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLogSender(t *testing.T) {
	res, err := NewLogSender().Send(context.Background(), Notification{Tokens: []string{"a", "b"}, Body: "hola"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)

	_, err = NewLogSender().Send(context.Background(), Notification{Body: "hola"})
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestFCMSender_MalformedResponse(t *testing.T) {
	srv := newFCMServer(t, http.StatusOK, "<html>")
	s, err := NewFCMSender("server-key", srv.URL)
	require.NoError(t, err)

	_, err = s.Send(context.Background(), Notification{Tokens: []string{"d"}, Body: "x"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "decode fcm response"))
}
