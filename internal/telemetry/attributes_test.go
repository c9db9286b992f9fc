// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/healthz", 200)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/healthz")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestTaskAttributes(t *testing.T) {
	attrs := TaskAttributes("celery", "send_verification_code", "")
	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes without an id, got %d", len(attrs))
	}

	attrs = TaskAttributes("celery", "send_verification_code", "a1b2")
	verifyAttribute(t, attrs, TaskQueueKey, "celery")
	verifyAttribute(t, attrs, TaskNameKey, "send_verification_code")
	verifyAttribute(t, attrs, TaskIDKey, "a1b2")
}

func TestChannelAttributes(t *testing.T) {
	tests := []struct {
		name    string
		layer   string
		channel string
		group   string
		wantLen int
	}{
		{"all fields", "default", "specific.abc!xyz", "rides", 3},
		{"group only", "", "", "rides", 1},
		{"empty", "", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := ChannelAttributes(tt.layer, tt.channel, tt.group)
			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.group != "" {
				verifyAttribute(t, attrs, ChannelGroupKey, tt.group)
			}
		})
	}
}

func TestNotifyAndStorageAttributes(t *testing.T) {
	attrs := NotifyAttributes("email", true)
	verifyAttribute(t, attrs, NotifyChannelKey, "email")
	verifyBoolAttribute(t, attrs, NotifySandboxKey, true)

	attrs = StorageAttributes("backend-media", "avatars/1.png")
	verifyAttribute(t, attrs, StorageBucketKey, "backend-media")
	verifyAttribute(t, attrs, StorageKeyKey, "avatars/1.png")

	if got := len(StorageAttributes("backend-media", "")); got != 1 {
		t.Errorf("Expected key to be omitted, got %d attributes", got)
	}
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "network_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "network_error")
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
