// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/backend/internal/broker"
	"github.com/ManuGH/backend/internal/cache"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/database"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/mail"
	"github.com/ManuGH/backend/internal/push"
	"github.com/ManuGH/backend/internal/sms"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/ManuGH/backend/internal/version"
	"github.com/redis/go-redis/v9"
)

// resultRetention bounds how long the redis result backend keeps outcomes.
const resultRetention = 24 * time.Hour

func work(ctx context.Context, s config.Settings, queue string, concurrency int) error {
	tp, err := telemetry.NewProvider(ctx, telemetry.ConfigFrom(s, version.Version))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	rdb, err := cache.NewRedisClient(s.TaskQueue.BrokerURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	if err := cache.Ping(ctx, rdb); err != nil {
		return err
	}

	b, err := broker.New(rdb, s.TaskQueue)
	if err != nil {
		return err
	}

	results, closeResults, err := openResults(ctx, s, rdb)
	if err != nil {
		return err
	}
	defer closeResults()

	w := broker.NewWorker(b, results, broker.WithQueue(queue), broker.WithConcurrency(concurrency))
	registerTasks(w, s)

	clog := log.WithComponent(config.LoggerBackend)
	clog.Info().
		Str(log.FieldEvent, "worker.started").
		Str("queue", queueOrDefault(queue)).
		Int("concurrency", concurrency).
		Str("result_backend", s.TaskQueue.ResultBackend).
		Msg("worker started")
	return w.Run(ctx)
}

func registerTasks(w *broker.Worker, s config.Settings) {
	w.Handle(sms.TaskName, sms.Handler(sms.New(s)))
	w.Handle(mail.TaskName, mail.Handler(mail.New(s)))
	w.Handle(push.TaskName, push.Handler(push.New(s)))
}

// openResults selects the result backend named by TaskQueue.ResultBackend.
func openResults(ctx context.Context, s config.Settings, rdb redis.UniversalClient) (broker.ResultStore, func(), error) {
	switch s.TaskQueue.ResultBackend {
	case config.ResultBackendRedis:
		return broker.NewRedisResults(rdb, resultRetention), func() {}, nil
	case config.ResultBackendDatabase:
		db, err := database.Open(ctx, s.Database)
		if err != nil {
			return nil, nil, err
		}
		results := database.NewTaskResults(db.Pool)
		if err := results.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return results, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown result backend %q", s.TaskQueue.ResultBackend)
	}
}

func queueOrDefault(q string) string {
	if q == "" {
		return broker.DefaultQueue
	}
	return q
}
