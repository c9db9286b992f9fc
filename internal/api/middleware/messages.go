// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/ManuGH/backend/internal/config"
)

// MessageLevel orders one-time user notifications.
type MessageLevel int

const (
	LevelDebug   MessageLevel = 10
	LevelInfo    MessageLevel = 20
	LevelSuccess MessageLevel = 25
	LevelWarning MessageLevel = 30
	LevelError   MessageLevel = 40
)

// ErrNoMessageStore is returned when the messages stage is not installed.
var ErrNoMessageStore = errors.New("messages stage not installed")

// messagesSessionKey is where pending messages live between requests.
const messagesSessionKey = "_messages"

// Message is a one-time notification shown on the next rendered response.
type Message struct {
	Level MessageLevel `json:"level"`
	Text  string       `json:"message"`
}

// messageStore queues messages in the session when one is available,
// otherwise for the current request only.
type messageStore struct {
	mu       sync.Mutex
	session  *Session
	minLevel MessageLevel
	local    []Message
}

type messageStoreKey struct{}

func (m *messageStore) pending() []Message {
	if m.session == nil {
		return m.local
	}
	raw, ok := m.session.Get(messagesSessionKey)
	if !ok {
		return nil
	}
	var out []Message
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func (m *messageStore) store(msgs []Message) {
	if m.session == nil {
		m.local = msgs
		return
	}
	if len(msgs) == 0 {
		m.session.Delete(messagesSessionKey)
		return
	}
	data, _ := json.Marshal(msgs)
	m.session.Set(messagesSessionKey, string(data))
}

// AddMessage queues a message. Messages below LevelInfo are dropped.
func AddMessage(ctx context.Context, level MessageLevel, text string) error {
	m, ok := ctx.Value(messageStoreKey{}).(*messageStore)
	if !ok {
		return ErrNoMessageStore
	}
	if level < m.minLevel {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(append(m.pending(), Message{Level: level, Text: text}))
	return nil
}

// Messages returns and clears the queued messages.
func Messages(ctx context.Context) []Message {
	m, ok := ctx.Value(messageStoreKey{}).(*messageStore)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending()
	if len(out) > 0 {
		m.store(nil)
	}
	return out
}

func messagesStage(_ config.Settings, _ Deps) (Middleware, error) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := &messageStore{
				session:  SessionFromContext(r.Context()),
				minLevel: LevelInfo,
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), messageStoreKey{}, m)))
		})
	}, nil
}
