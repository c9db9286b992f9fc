// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package log provides structured logging utilities.
//
// The console handler level acts as a floor for every logger. Named loggers
// may be stricter than the handler; loggers without an explicit level use
// RootLevel.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RootLevel applies to named loggers that have no configured level.
const RootLevel = zerolog.WarnLevel

// Config captures options for configuring the global logger.
type Config struct {
	Level   string            // console handler level ("debug", "INFO", "warning", ...)
	Loggers map[string]string // per-logger levels keyed by component name
	Output  io.Writer         // optional writer (defaults to os.Stdout)
	Service string            // optional service name attached to every log entry
	Version string
}

var (
	mu           sync.RWMutex
	base         zerolog.Logger
	handlerLevel = zerolog.InfoLevel
	loggerLevels = map[string]zerolog.Level{}
)

// ParseLevel accepts zerolog level names as well as the upper-case names used
// by logging profiles (WARNING, CRITICAL).
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	case "notset":
		return zerolog.TraceLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	if lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// Configure (re)initialises the global zerolog logger. Invalid levels are
// reported and leave the previous value in place.
func Configure(cfg Config) error {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}

	levels := make(map[string]zerolog.Level, len(cfg.Loggers))
	for name, raw := range cfg.Loggers {
		parsed, err := ParseLevel(raw)
		if err != nil {
			return fmt.Errorf("logger %s: %w", name, err)
		}
		levels[strings.ToLower(name)] = parsed
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}
	service := cfg.Service
	if service == "" {
		service = "backend"
	}

	zerolog.TimeFieldFormat = time.RFC3339

	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(level)
	handlerLevel = level
	loggerLevels = levels
	ctx := zerolog.New(writer).With().Timestamp().Str("service", service)
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	base = ctx.Logger()
	return nil
}

// LevelFor returns the effective level of the named logger.
func LevelFor(name string) zerolog.Level {
	mu.RLock()
	defer mu.RUnlock()
	return effectiveLevel(name)
}

func effectiveLevel(name string) zerolog.Level {
	lvl, ok := loggerLevels[strings.ToLower(name)]
	if !ok {
		lvl = RootLevel
	}
	if handlerLevel > lvl {
		return handlerLevel
	}
	return lvl
}

// WithComponent returns a child logger annotated with the given component
// name and filtered at that component's effective level.
func WithComponent(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Level(effectiveLevel(component)).With().Str(FieldComponent, component).Logger()
}

func init() {
	_ = Configure(Config{})
}
