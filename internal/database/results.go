// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/backend/internal/broker"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createTaskResults = `CREATE TABLE IF NOT EXISTS task_results (
	task_id   TEXT PRIMARY KEY,
	task_name TEXT NOT NULL,
	status    TEXT NOT NULL,
	result    JSONB,
	error     TEXT NOT NULL DEFAULT '',
	done_at   TIMESTAMPTZ NOT NULL
)`

const upsertTaskResult = `INSERT INTO task_results (task_id, task_name, status, result, error, done_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (task_id) DO UPDATE SET
	task_name = EXCLUDED.task_name,
	status    = EXCLUDED.status,
	result    = EXCLUDED.result,
	error     = EXCLUDED.error,
	done_at   = EXCLUDED.done_at`

const selectTaskResult = `SELECT task_id, task_name, status, result, error, done_at
FROM task_results WHERE task_id = $1`

// TaskResults is the database task result backend.
type TaskResults struct {
	q Querier
}

var _ broker.ResultStore = (*TaskResults)(nil)

func NewTaskResults(q Querier) *TaskResults {
	return &TaskResults{q: q}
}

// EnsureSchema creates the task_results table when missing.
func (s *TaskResults) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, createTaskResults); err != nil {
		return fmt.Errorf("create task_results: %w", err)
	}
	return nil
}

func (s *TaskResults) StoreResult(ctx context.Context, r broker.Result) error {
	var payload []byte
	if len(r.Result) > 0 {
		payload = r.Result
	}
	if _, err := s.q.Exec(ctx, upsertTaskResult, r.TaskID, r.TaskName, r.Status, payload, r.Error, r.DoneAt); err != nil {
		return fmt.Errorf("store result %s: %w", r.TaskID, err)
	}
	return nil
}

func (s *TaskResults) Result(ctx context.Context, taskID string) (broker.Result, error) {
	var r broker.Result
	var payload []byte
	err := s.q.QueryRow(ctx, selectTaskResult, taskID).
		Scan(&r.TaskID, &r.TaskName, &r.Status, &payload, &r.Error, &r.DoneAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return broker.Result{}, broker.ErrResultNotFound
	}
	if err != nil {
		return broker.Result{}, fmt.Errorf("load result %s: %w", taskID, err)
	}
	r.Result = payload
	return r, nil
}
