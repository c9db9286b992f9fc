// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/ManuGH/backend/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		Enabled:      false,
		ServiceName:  "test-service",
		ExporterType: "grpc",
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if provider.tp != nil {
		t.Error("Expected noop provider (tp == nil)")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	if span.IsRecording() {
		t.Error("Expected noop tracer span to be non-recording")
	}
	span.End()
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "test-service",
		ExporterType: "invalid",
	})
	if err == nil {
		t.Fatal("Expected error for invalid exporter type")
	}

	expectedMsg := "unsupported exporter type: invalid (supported: grpc, http)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message %q, got %q", expectedMsg, err.Error())
	}
}

func TestConfigFrom(t *testing.T) {
	s := config.Defaults("/srv/app")
	s.Profile = config.ProfileProduction
	s.Tracing = config.TracingConfig{Exporter: config.TracingExporterHTTP, Endpoint: "collector:4318", SampleRate: 0.5}

	cfg := ConfigFrom(s, "1.2.3")
	if !cfg.Enabled {
		t.Error("Expected tracing to be enabled")
	}
	if cfg.ServiceName != ServiceName || cfg.ServiceVersion != "1.2.3" {
		t.Errorf("unexpected service identity %s/%s", cfg.ServiceName, cfg.ServiceVersion)
	}
	if cfg.Environment != "production" {
		t.Errorf("Expected environment=production, got %s", cfg.Environment)
	}
	if cfg.ExporterType != "http" || cfg.Endpoint != "collector:4318" || cfg.SamplingRate != 0.5 {
		t.Errorf("unexpected exporter settings %+v", cfg)
	}

	if cfg.Fingerprint != config.ShortFingerprint(s) {
		t.Errorf("Expected fingerprint %s, got %s", config.ShortFingerprint(s), cfg.Fingerprint)
	}

	if ConfigFrom(config.Defaults("/srv/app"), "dev").Enabled {
		t.Error("Expected default settings to disable tracing")
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "ParentBased{root:AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{0.5, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		if len(desc) < len(tt.want) || desc[:len(tt.want)] != tt.want {
			t.Errorf("samplerFor(%v) = %s, want prefix %s", tt.rate, desc, tt.want)
		}
	}
}

func TestProviderWithExporter_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider, err := NewProviderWithExporter(context.Background(), Config{
		Enabled:      true,
		ServiceName:  ServiceName,
		SamplingRate: 1,
		Fingerprint:  "abc123",
	}, sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		_, _ = NewProvider(context.Background(), Config{})
	})

	_, span := Tracer("test").Start(context.Background(), "publish")
	span.SetAttributes(TaskAttributes("celery", "cleanup", "")...)
	RecordError(span, errors.New("boom"), "broker")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "publish" {
		t.Errorf("Expected span name publish, got %s", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("Expected error status, got %v", spans[0].Status.Code)
	}
	verifyAttribute(t, spans[0].Attributes, ErrorTypeKey, "broker")
	verifyAttribute(t, spans[0].Resource.Attributes(), ConfigFingerprintKey, "abc123")
}

func TestProvider_ShutdownNoop(t *testing.T) {
	provider := &Provider{tp: nil}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected no error on noop shutdown, got: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Expected no error on noop shutdown with canceled context, got: %v", err)
	}
}
