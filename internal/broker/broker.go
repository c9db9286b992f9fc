// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package broker publishes and consumes background tasks over Redis lists.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrContentNotAccepted is returned for payloads whose serializer is not
	// in TaskQueueConfig.AcceptContent.
	ErrContentNotAccepted = errors.New("content type not accepted")
	// ErrNoTask is returned by Consume when the wait timed out.
	ErrNoTask = errors.New("no task available")
	// ErrMalformedTask is returned for payloads that are not a valid envelope
	// or task. They are dropped from the queue.
	ErrMalformedTask = errors.New("malformed task payload")
)

// DefaultQueue is the queue tasks go to when none is named.
const DefaultQueue = "celery"

// mimeTypes maps serializer names to envelope content types.
var mimeTypes = map[string]string{
	config.ContentTypeJSON: "application/json",
}

// promoteDue moves up to 100 delayed messages whose ETA has passed onto the
// consuming end of the queue list.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, msg in ipairs(due) do
  redis.call('ZREM', KEYS[1], msg)
  redis.call('RPUSH', KEYS[2], msg)
end
return #due
`)

// Task is one unit of background work. Tasks with an ETA in the future are
// held back until it passes.
type Task struct {
	ID      string         `json:"id"`
	Name    string         `json:"task"`
	Args    []any          `json:"args"`
	Kwargs  map[string]any `json:"kwargs"`
	ETA     *time.Time     `json:"eta,omitempty"`
	Retries int            `json:"retries"`
}

type envelope struct {
	ContentType string          `json:"contentType"`
	Queue       string          `json:"queue"`
	PublishedAt time.Time       `json:"publishedAt"`
	Body        json.RawMessage `json:"body"`
}

// Broker is a Redis list based task queue.
type Broker struct {
	client     redis.UniversalClient
	accept     []string
	serializer string
	logger     zerolog.Logger
	now        func() time.Time
}

// New validates the serializer settings and wraps client. The caller owns client.
func New(client redis.UniversalClient, cfg config.TaskQueueConfig) (*Broker, error) {
	if !slices.Contains(cfg.AcceptContent, cfg.TaskSerializer) {
		return nil, fmt.Errorf("%w: serializer %q is not in accepted content %v", ErrContentNotAccepted, cfg.TaskSerializer, cfg.AcceptContent)
	}
	if _, ok := mimeTypes[cfg.TaskSerializer]; !ok {
		return nil, fmt.Errorf("unsupported task serializer %q", cfg.TaskSerializer)
	}
	return &Broker{
		client:     client,
		accept:     slices.Clone(cfg.AcceptContent),
		serializer: cfg.TaskSerializer,
		logger:     log.WithComponent(config.LoggerBackend).With().Str("subsystem", "broker").Logger(),
		now:        time.Now,
	}, nil
}

func queueKey(queue string) string {
	if queue == "" {
		queue = DefaultQueue
	}
	return queue
}

// delayedKey names the sorted set of tasks waiting on their ETA, scored in
// Unix milliseconds.
func delayedKey(queue string) string {
	return queue + ":delayed"
}

// Publish enqueues task and returns its ID, generating one when empty.
func (b *Broker) Publish(ctx context.Context, queue string, task Task) (string, error) {
	queue = queueKey(queue)
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Args == nil {
		task.Args = []any{}
	}
	if task.Kwargs == nil {
		task.Kwargs = map[string]any{}
	}

	ctx, span := telemetry.Tracer("backend/broker").Start(ctx, "broker.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(telemetry.TaskAttributes(queue, task.Name, task.ID)...),
	)
	defer span.End()

	err := b.publish(ctx, queue, task)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		telemetry.RecordError(span, err, "broker")
	}
	metrics.IncTaskPublish(queue, outcome)
	if err != nil {
		return "", err
	}

	reqLog := log.WithContext(ctx, b.logger)
	reqLog.Debug().
		Str(log.FieldEvent, "task.published").
		Str("task", task.Name).
		Str("task_id", task.ID).
		Str("queue", queue).
		Msg("task published")
	return task.ID, nil
}

func (b *Broker) publish(ctx context.Context, queue string, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.Name, err)
	}
	msg, err := json.Marshal(envelope{
		ContentType: mimeTypes[b.serializer],
		Queue:       queue,
		PublishedAt: b.now().UTC(),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if task.ETA != nil && task.ETA.After(b.now()) {
		return b.schedule(ctx, queue, *task.ETA, msg)
	}
	if err := b.client.LPush(ctx, queue, msg).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (b *Broker) schedule(ctx context.Context, queue string, eta time.Time, msg any) error {
	z := redis.Z{Score: float64(eta.UnixMilli()), Member: msg}
	if err := b.client.ZAdd(ctx, delayedKey(queue), z).Err(); err != nil {
		return fmt.Errorf("schedule on %s: %w", queue, err)
	}
	return nil
}

func (b *Broker) promote(ctx context.Context, queue string) error {
	keys := []string{delayedKey(queue), queue}
	if err := promoteDue.Run(ctx, b.client, keys, b.now().UnixMilli()).Err(); err != nil {
		return fmt.Errorf("promote due tasks on %s: %w", queue, err)
	}
	return nil
}

// Consume blocks up to timeout for the oldest ready task on queue. Delayed
// tasks whose ETA has passed are moved onto the queue first. Payloads in a
// content type that is not accepted are discarded and reported as
// ErrContentNotAccepted; undecodable ones as ErrMalformedTask.
func (b *Broker) Consume(ctx context.Context, queue string, timeout time.Duration) (Task, error) {
	queue = queueKey(queue)
	if err := b.promote(ctx, queue); err != nil {
		return Task{}, err
	}
	res, err := b.client.BRPop(ctx, timeout, queue).Result()
	if errors.Is(err, redis.Nil) {
		return Task{}, ErrNoTask
	}
	if err != nil {
		return Task{}, fmt.Errorf("consume from %s: %w", queue, err)
	}
	// BRPOP replies [key, value].
	task, err := b.decode(res[1])
	if err != nil {
		return Task{}, err
	}
	if task.ETA != nil && task.ETA.After(b.now()) {
		// Pushed straight onto the list by another producer; park it.
		if err := b.schedule(ctx, queue, *task.ETA, res[1]); err != nil {
			return Task{}, err
		}
		return Task{}, ErrNoTask
	}
	return task, nil
}

func (b *Broker) decode(raw string) (Task, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Task{}, b.malformed("envelope", err)
	}
	if !b.accepts(env.ContentType) {
		b.logger.Warn().
			Str(log.FieldEvent, "task.rejected").
			Str("content_type", env.ContentType).
			Msg("discarding task with refused content type")
		return Task{}, fmt.Errorf("%w: %s", ErrContentNotAccepted, env.ContentType)
	}
	var task Task
	if err := json.Unmarshal(env.Body, &task); err != nil {
		return Task{}, b.malformed("body", err)
	}
	return task, nil
}

func (b *Broker) malformed(part string, err error) error {
	b.logger.Warn().
		Err(err).
		Str(log.FieldEvent, "task.malformed").
		Str("part", part).
		Msg("discarding undecodable task")
	return fmt.Errorf("%w: decode %s: %v", ErrMalformedTask, part, err)
}

func (b *Broker) accepts(contentType string) bool {
	for _, name := range b.accept {
		if mimeTypes[name] == contentType {
			return true
		}
	}
	return false
}

// QueueLength returns the number of ready tasks on queue. Delayed tasks are
// not counted until their ETA passes.
func (b *Broker) QueueLength(ctx context.Context, queue string) (int64, error) {
	return b.client.LLen(ctx, queueKey(queue)).Result()
}

// Ping checks broker connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
