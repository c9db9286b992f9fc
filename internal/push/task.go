// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/backend/internal/broker"
)

// TaskName is the background task that delivers one notification.
const TaskName = "send_push"

type publisher interface {
	Publish(ctx context.Context, queue string, task broker.Task) (string, error)
}

// Enqueue publishes n as a send_push task.
func Enqueue(ctx context.Context, b publisher, queue string, n Notification) (string, error) {
	if err := n.check(); err != nil {
		return "", err
	}
	return b.Publish(ctx, queue, broker.Task{
		Name: TaskName,
		Kwargs: map[string]any{
			"tokens": n.Tokens,
			"title":  n.Title,
			"body":   n.Body,
			"data":   n.Data,
		},
	})
}

// Handler runs queued send_push tasks with sender.
func Handler(sender Sender) broker.HandlerFunc {
	return func(ctx context.Context, task broker.Task) (any, error) {
		raw, err := json.Marshal(task.Kwargs)
		if err != nil {
			return nil, err
		}
		var payload struct {
			Tokens []string          `json:"tokens"`
			Title  string            `json:"title"`
			Body   string            `json:"body"`
			Data   map[string]string `json:"data"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("%s: %w", TaskName, err)
		}
		return sender.Send(ctx, Notification{
			Tokens: payload.Tokens,
			Title:  payload.Title,
			Body:   payload.Body,
			Data:   payload.Data,
		})
	}
}
