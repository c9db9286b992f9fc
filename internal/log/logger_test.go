// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARNING", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"CRITICAL", zerolog.FatalLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("")
	assert.Error(t, err)
}

func TestConfigure_PerLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{
		Level:   "DEBUG",
		Loggers: map[string]string{"core": "DEBUG", "osw4l": "WARNING"},
		Output:  &buf,
		Service: "test",
	}))
	t.Cleanup(func() { _ = Configure(Config{}) })

	core := WithComponent("core")
	osw4l := WithComponent("osw4l")
	other := WithComponent("unconfigured")
	core.Debug().Msg("core debug")
	osw4l.Info().Msg("osw4l info")
	osw4l.Warn().Msg("osw4l warn")
	other.Info().Msg("dropped by root level")
	other.Error().Msg("kept by root level")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 3)
	assert.Equal(t, "core debug", lines[0]["message"])
	assert.Equal(t, "osw4l warn", lines[1]["message"])
	assert.Equal(t, "kept by root level", lines[2]["message"])
	assert.Equal(t, "test", lines[0]["service"])
	assert.Equal(t, "core", lines[0][FieldComponent])
}

func TestConfigure_HandlerLevelIsFloor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{
		Level:   "INFO",
		Loggers: map[string]string{"core": "DEBUG"},
		Output:  &buf,
	}))
	t.Cleanup(func() { _ = Configure(Config{}) })

	assert.Equal(t, zerolog.InfoLevel, LevelFor("core"))
	assert.Equal(t, zerolog.WarnLevel, LevelFor("backend"))

	core := WithComponent("core")
	core.Debug().Msg("hidden")
	core.Info().Msg("shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["message"])
}

func TestConfigure_RejectsBadLevel(t *testing.T) {
	err := Configure(Config{Level: "INFO", Loggers: map[string]string{"core": "chatty"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger core")
}

func TestMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{Level: "INFO", Loggers: map[string]string{"core": "INFO"}, Output: &buf}))
	t.Cleanup(func() { _ = Configure(Config{}) })

	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "rid-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "request.handled", lines[0][FieldEvent])
	assert.Equal(t, "/ping", lines[0][FieldPath])
	assert.Equal(t, float64(http.StatusTeapot), lines[0][FieldStatus])
	assert.Equal(t, "rid-1", lines[0][FieldRequestID])
	assert.Equal(t, "warn", lines[0]["level"])
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = ContextWithRequestID(ctx, "rid-2")

	var buf bytes.Buffer
	logger := WithContext(ctx, zerolog.New(&buf))
	logger.Info().Msg("correlated")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "rid-2", lines[0][FieldRequestID])
	assert.Equal(t, traceID.String(), lines[0][FieldTraceID])
	assert.Equal(t, spanID.String(), lines[0][FieldSpanID])

	buf.Reset()
	plain := WithContext(context.Background(), zerolog.New(&buf))
	plain.Info().Msg("plain")
	lines = decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], FieldTraceID)
}
