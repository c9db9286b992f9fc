// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sms

import (
	"context"
	"testing"

	"github.com/ManuGH/backend/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	queue string
	tasks []broker.Task
}

func (p *fakePublisher) Publish(_ context.Context, queue string, task broker.Task) (string, error) {
	p.queue = queue
	p.tasks = append(p.tasks, task)
	return "task-1", nil
}

type recordingSender struct{ to, body string }

func (r *recordingSender) Send(_ context.Context, to, body string) error {
	r.to, r.body = to, body
	return nil
}

func TestQueuedSender_PublishesTask(t *testing.T) {
	pub := &fakePublisher{}
	s := NewQueuedSender(pub, "sms")

	require.NoError(t, s.Send(context.Background(), "+573001234567", "code 111111"))
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, "sms", pub.queue)
	assert.Equal(t, TaskName, pub.tasks[0].Name)
	assert.Equal(t, []any{"+573001234567", "code 111111"}, pub.tasks[0].Args)

	assert.ErrorIs(t, s.Send(context.Background(), "bad", "x"), ErrInvalidNumber)
	assert.Len(t, pub.tasks, 1)
}

func TestHandler(t *testing.T) {
	rec := &recordingSender{}
	h := Handler(rec)

	out, err := h(context.Background(), broker.Task{Name: TaskName, Args: []any{"+573001234567", "hola"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"to": "+573001234567"}, out)
	assert.Equal(t, "hola", rec.body)

	_, err = h(context.Background(), broker.Task{Name: TaskName, Args: []any{"+573001234567"}})
	assert.Error(t, err)
	_, err = h(context.Background(), broker.Task{Name: TaskName, Args: []any{1, 2}})
	assert.Error(t, err)
}
