// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mail

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ManuGH/backend/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct{ tasks []broker.Task }

func (p *fakePublisher) Publish(_ context.Context, _ string, task broker.Task) (string, error) {
	p.tasks = append(p.tasks, task)
	return "id", nil
}

func TestEnqueueThenHandle(t *testing.T) {
	pub := &fakePublisher{}
	_, err := Enqueue(context.Background(), pub, "", Message{
		To: []string{"a@example.com"}, Subject: "Hi", Text: "body",
	})
	require.NoError(t, err)
	require.Len(t, pub.tasks, 1)

	// Tasks reach the worker as decoded JSON.
	raw, err := json.Marshal(pub.tasks[0])
	require.NoError(t, err)
	var task broker.Task
	require.NoError(t, json.Unmarshal(raw, &task))

	client := &fakeClient{status: 202}
	out, err := Handler(newMailer(client, testSettings(false, false)))(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"recipients": 1}, out)
	require.Len(t, client.sent, 1)
	assert.Equal(t, "Hi", client.sent[0].Subject)
}

func TestEnqueue_NoRecipients(t *testing.T) {
	_, err := Enqueue(context.Background(), &fakePublisher{}, "", Message{})
	assert.ErrorIs(t, err, ErrNoRecipients)
}
