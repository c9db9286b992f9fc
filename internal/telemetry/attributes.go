// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for consistent tracing across the backend.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Task queue attributes
	TaskNameKey  = "task.name"
	TaskIDKey    = "task.id"
	TaskQueueKey = "task.queue"

	// Channel layer attributes
	ChannelNameKey  = "channel.name"
	ChannelGroupKey = "channel.group"
	ChannelLayerKey = "channel.layer"

	// Notification attributes
	NotifyChannelKey = "notify.channel"
	NotifySandboxKey = "notify.sandbox"

	// Storage attributes
	StorageBucketKey = "storage.bucket"
	StorageKeyKey    = "storage.key"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// TaskAttributes describes a task published to the broker.
func TaskAttributes(queue, name, id string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(TaskQueueKey, queue),
		attribute.String(TaskNameKey, name),
	}
	if id != "" {
		attrs = append(attrs, attribute.String(TaskIDKey, id))
	}
	return attrs
}

// ChannelAttributes describes a channel layer operation. Empty values are omitted.
func ChannelAttributes(layer, channel, group string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if layer != "" {
		attrs = append(attrs, attribute.String(ChannelLayerKey, layer))
	}
	if channel != "" {
		attrs = append(attrs, attribute.String(ChannelNameKey, channel))
	}
	if group != "" {
		attrs = append(attrs, attribute.String(ChannelGroupKey, group))
	}
	return attrs
}

// NotifyAttributes describes an outgoing email or SMS.
func NotifyAttributes(channel string, sandbox bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(NotifyChannelKey, channel),
		attribute.Bool(NotifySandboxKey, sandbox),
	}
}

// StorageAttributes describes an object storage call.
func StorageAttributes(bucket, key string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(StorageBucketKey, bucket)}
	if key != "" {
		attrs = append(attrs, attribute.String(StorageKeyKey, key))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks span as failed. A nil err is a no-op.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(ErrorAttributes(err, errorType)...)
	span.SetStatus(codes.Error, err.Error())
}
