// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task states recorded in the result backend.
const (
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// ErrResultNotFound is returned for unknown task IDs.
var ErrResultNotFound = errors.New("task result not found")

// Result is the recorded outcome of one task run.
type Result struct {
	TaskID   string          `json:"taskId"`
	TaskName string          `json:"taskName"`
	Status   string          `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	DoneAt   time.Time       `json:"doneAt"`
}

// ResultStore persists task results.
type ResultStore interface {
	StoreResult(ctx context.Context, r Result) error
	Result(ctx context.Context, taskID string) (Result, error)
}

// RedisResults keeps results in Redis for a fixed retention.
type RedisResults struct {
	client    redis.UniversalClient
	retention time.Duration
}

// DefaultResultRetention is how long RedisResults keeps a result.
const DefaultResultRetention = 24 * time.Hour

func NewRedisResults(client redis.UniversalClient, retention time.Duration) *RedisResults {
	if retention <= 0 {
		retention = DefaultResultRetention
	}
	return &RedisResults{client: client, retention: retention}
}

func resultKey(id string) string {
	return "task-meta-" + id
}

func (s *RedisResults) StoreResult(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.client.Set(ctx, resultKey(r.TaskID), data, s.retention).Err()
}

func (s *RedisResults) Result(ctx context.Context, taskID string) (Result, error) {
	data, err := s.client.Get(ctx, resultKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, ErrResultNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("load result %s: %w", taskID, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("decode result %s: %w", taskID, err)
	}
	return r, nil
}
