// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RunsHandlersAndStoresResults(t *testing.T) {
	_, client, b := newTestBroker(t)
	results := NewRedisResults(client, time.Hour)

	w := NewWorker(b, results, WithConcurrency(2), WithPollTimeout(50*time.Millisecond))
	w.Handle("add", func(_ context.Context, task Task) (any, error) {
		return task.Args[0].(float64) + task.Args[1].(float64), nil
	})
	w.Handle("fail", func(context.Context, Task) (any, error) {
		return nil, errors.New("smtp unavailable")
	})
	w.Handle("panic", func(context.Context, Task) (any, error) {
		panic("boom")
	})

	ctx := context.Background()
	addID, err := b.Publish(ctx, "", Task{Name: "add", Args: []any{2, 3}})
	require.NoError(t, err)
	failID, err := b.Publish(ctx, "", Task{Name: "fail"})
	require.NoError(t, err)
	panicID, err := b.Publish(ctx, "", Task{Name: "panic"})
	require.NoError(t, err)
	unknownID, err := b.Publish(ctx, "", Task{Name: "missing"})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		_, err := results.Result(ctx, unknownID)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, id := range []string{addID, failID, panicID} {
			if _, err := results.Result(ctx, id); err != nil {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	add, err := results.Result(ctx, addID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, add.Status)
	assert.JSONEq(t, `5`, string(add.Result))

	failed, err := results.Result(ctx, failID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, failed.Status)
	assert.Equal(t, "smtp unavailable", failed.Error)

	panicked, err := results.Result(ctx, panicID)
	require.NoError(t, err)
	assert.Contains(t, panicked.Error, "panicked")

	unknown, err := results.Result(ctx, unknownID)
	require.NoError(t, err)
	assert.Contains(t, unknown.Error, ErrUnknownTask.Error())
}

func TestWorker_SkipsMalformedPayloads(t *testing.T) {
	mr, client, b := newTestBroker(t)
	results := NewRedisResults(client, time.Hour)
	w := NewWorker(b, results, WithConcurrency(1), WithPollTimeout(50*time.Millisecond))
	w.Handle("ping", func(context.Context, Task) (any, error) { return "pong", nil })

	ctx := context.Background()
	_, err := mr.Lpush(DefaultQueue, "not json")
	require.NoError(t, err)
	id, err := b.Publish(ctx, "", Task{Name: "ping"})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.Eventually(t, func() bool {
		_, err := results.Result(ctx, id)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	res, err := results.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestRedisResults_NotFound(t *testing.T) {
	_, client, _ := newTestBroker(t)
	_, err := NewRedisResults(client, 0).Result(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrResultNotFound)
}
