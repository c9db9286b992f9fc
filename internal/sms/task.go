// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sms

import (
	"context"
	"fmt"

	"github.com/ManuGH/backend/internal/broker"
)

// TaskName is the background task that delivers one text message.
const TaskName = "send_sms"

// publisher is the subset of the broker used by QueuedSender.
type publisher interface {
	Publish(ctx context.Context, queue string, task broker.Task) (string, error)
}

// QueuedSender hands messages to the task queue instead of sending inline.
type QueuedSender struct {
	broker publisher
	queue  string
}

func NewQueuedSender(b publisher, queue string) *QueuedSender {
	return &QueuedSender{broker: b, queue: queue}
}

func (s *QueuedSender) Send(ctx context.Context, to, body string) error {
	if err := check(to, body); err != nil {
		return err
	}
	_, err := s.broker.Publish(ctx, s.queue, broker.Task{
		Name: TaskName,
		Args: []any{to, body},
	})
	return err
}

// Handler runs queued send_sms tasks with sender.
func Handler(sender Sender) broker.HandlerFunc {
	return func(ctx context.Context, task broker.Task) (any, error) {
		if len(task.Args) != 2 {
			return nil, fmt.Errorf("%s: want 2 args, got %d", TaskName, len(task.Args))
		}
		to, ok1 := task.Args[0].(string)
		body, ok2 := task.Args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: args must be strings", TaskName)
		}
		if err := sender.Send(ctx, to, body); err != nil {
			return nil, err
		}
		return map[string]string{"to": to}, nil
	}
}
