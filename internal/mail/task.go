// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/backend/internal/broker"
)

// TaskName is the background task that delivers one email.
const TaskName = "send_email"

type publisher interface {
	Publish(ctx context.Context, queue string, task broker.Task) (string, error)
}

// Enqueue publishes msg as a send_email task.
func Enqueue(ctx context.Context, b publisher, queue string, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipients
	}
	return b.Publish(ctx, queue, broker.Task{
		Name: TaskName,
		Kwargs: map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
			"text":    msg.Text,
			"html":    msg.HTML,
		},
	})
}

// Handler runs queued send_email tasks with m.
func Handler(m *Mailer) broker.HandlerFunc {
	return func(ctx context.Context, task broker.Task) (any, error) {
		raw, err := json.Marshal(task.Kwargs)
		if err != nil {
			return nil, err
		}
		var payload struct {
			To      []string `json:"to"`
			Subject string   `json:"subject"`
			Text    string   `json:"text"`
			HTML    string   `json:"html"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%s: %w", TaskName, err)
		}
		msg := Message{To: payload.To, Subject: payload.Subject, Text: payload.Text, HTML: payload.HTML}
		if err := m.Send(ctx, msg); err != nil {
			return nil, err
		}
		return map[string]int{"recipients": len(msg.To)}, nil
	}
}
