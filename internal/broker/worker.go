// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc runs one task and returns a JSON-encodable result.
type HandlerFunc func(ctx context.Context, task Task) (any, error)

// ErrUnknownTask is recorded for tasks without a registered handler.
var ErrUnknownTask = errors.New("unknown task")

// Worker consumes a queue with a fixed number of goroutines.
type Worker struct {
	broker      *Broker
	results     ResultStore
	handlers    map[string]HandlerFunc
	queue       string
	concurrency int
	pollTimeout time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithQueue(queue string) WorkerOption {
	return func(w *Worker) { w.queue = queue }
}

func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithPollTimeout bounds each blocking pop so shutdown is noticed promptly.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// NewWorker creates a worker. results may be nil to discard outcomes.
func NewWorker(b *Broker, results ResultStore, opts ...WorkerOption) *Worker {
	w := &Worker{
		broker:      b,
		results:     results,
		handlers:    make(map[string]HandlerFunc),
		queue:       DefaultQueue,
		concurrency: 4,
		pollTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle registers fn for tasks named name. Not safe to call after Run.
func (w *Worker) Handle(name string, fn HandlerFunc) {
	w.handlers[name] = fn
}

// Tasks returns the registered task names, sorted.
func (w *Worker) Tasks() []string {
	names := make([]string, 0, len(w.handlers))
	for name := range w.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run consumes until ctx is cancelled. It returns nil on cancellation and
// the first broker error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.broker.logger
	logger.Info().
		Str(log.FieldEvent, "worker.start").
		Str("queue", w.queue).
		Int("concurrency", w.concurrency).
		Msg("task worker started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				task, err := w.broker.Consume(ctx, w.queue, w.pollTimeout)
				switch {
				case errors.Is(err, ErrNoTask), errors.Is(err, ErrContentNotAccepted), errors.Is(err, ErrMalformedTask):
					continue
				case err != nil:
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				w.execute(ctx, task)
			}
		})
	}
	err := g.Wait()
	logger.Info().Str(log.FieldEvent, "worker.stop").Msg("task worker stopped")
	return err
}

// execute runs one task and records its result. Handler failures never stop
// the worker.
func (w *Worker) execute(ctx context.Context, task Task) {
	ctx, span := telemetry.Tracer("backend/broker").Start(ctx, "broker.execute",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(telemetry.TaskAttributes(w.queue, task.Name, task.ID)...),
	)
	defer span.End()

	res := Result{TaskID: task.ID, TaskName: task.Name, Status: StatusSuccess}
	value, err := w.run(ctx, task)
	if err == nil && value != nil {
		res.Result, err = json.Marshal(value)
	}
	if err != nil {
		res.Status = StatusFailure
		res.Result = nil
		res.Error = err.Error()
		telemetry.RecordError(span, err, "task")
		w.broker.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "task.failed").
			Str("task", task.Name).
			Str("task_id", task.ID).
			Msg("task failed")
	}
	res.DoneAt = w.broker.now().UTC()

	if w.results == nil {
		return
	}
	if err := w.results.StoreResult(context.WithoutCancel(ctx), res); err != nil {
		w.broker.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to store task result")
	}
}

func (w *Worker) run(ctx context.Context, task Task) (result any, err error) {
	fn, ok := w.handlers[task.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, task.Name)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, p)
		}
	}()
	return fn(ctx, task)
}
