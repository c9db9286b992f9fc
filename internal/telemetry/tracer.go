// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package telemetry provides OpenTelemetry tracing for the backend.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "backend"

// ConfigFingerprintKey tags the resource with the short settings fingerprint,
// so traces can be matched to the configuration that produced them.
const ConfigFingerprintKey = "backend.config.fingerprint"

// Config is the tracing view of the settings.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Environment is the settings profile ("production" or "development").
	Environment string
	// ExporterType is config.TracingExporterGRPC or config.TracingExporterHTTP.
	ExporterType string
	// Endpoint is the OTLP collector host:port.
	Endpoint     string
	SamplingRate float64
	Fingerprint  string
}

// ConfigFrom derives the tracer configuration from effective settings.
func ConfigFrom(s config.Settings, version string) Config {
	return Config{
		Enabled:        s.Tracing.Enabled(),
		ServiceName:    ServiceName,
		ServiceVersion: version,
		Environment:    string(s.Profile),
		ExporterType:   s.Tracing.Exporter,
		Endpoint:       s.Tracing.Endpoint,
		SamplingRate:   s.Tracing.SampleRate,
		Fingerprint:    config.ShortFingerprint(s),
	}
}

// Provider owns the installed tracer provider; nil when tracing is off.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs a global tracer provider exporting over OTLP. With
// tracing disabled a noop provider is installed instead, so instrumented
// code never checks whether tracing is on.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewProviderWithExporter(ctx, cfg, sdktrace.WithBatcher(exporter))
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case config.TracingExporterGRPC:
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("otlp grpc exporter: %w", err)
		}
		return exp, nil
	case config.TracingExporterHTTP:
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("otlp http exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unsupported exporter type: %s (supported: %s, %s)",
		cfg.ExporterType, config.TracingExporterGRPC, config.TracingExporterHTTP)
}

// NewProviderWithExporter installs a provider around the given span
// processor option. Tests pass sdktrace.WithSyncer with an in-memory exporter.
func NewProviderWithExporter(ctx context.Context, cfg Config, processor sdktrace.TracerProviderOption) (*Provider, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	}
	if cfg.Fingerprint != "" {
		attrs = append(attrs, attribute.String(ConfigFingerprintKey, cfg.Fingerprint))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return &Provider{tp: tp}, nil
}

// samplerFor respects the caller's sampling decision and samples new roots
// at rate.
func samplerFor(rate float64) sdktrace.Sampler {
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	root := sdktrace.AlwaysSample()
	if rate < 1 {
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// Shutdown flushes buffered spans, giving up after five seconds.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(ctx)
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
