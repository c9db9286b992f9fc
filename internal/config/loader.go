// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
)

// Loader handles configuration loading with precedence: process env > .env file > defaults.
type Loader struct {
	baseDir         string
	envFile         string
	explicitEnvFile bool
	lookup          LookupFunc

	// mu guards the results of the last Load.
	mu              sync.Mutex
	consumedEnvKeys []string
	envFileLoaded   bool
}

// Option customises a Loader.
type Option func(*Loader)

// WithEnvFile reads path instead of <baseDir>/.env. A missing explicit file is an error.
func WithEnvFile(path string) Option {
	return func(l *Loader) {
		if path == "" {
			return
		}
		l.envFile = path
		l.explicitEnvFile = true
	}
}

// WithLookup replaces the process environment lookup (tests).
func WithLookup(fn LookupFunc) Option {
	return func(l *Loader) {
		if fn != nil {
			l.lookup = fn
		}
	}
}

// NewLoader creates a loader rooted at baseDir. An empty baseDir means the
// working directory.
func NewLoader(baseDir string, opts ...Option) *Loader {
	l := &Loader{
		baseDir: baseDir,
		lookup:  os.LookupEnv,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the environment, applies the profile and validates the result.
// Failures increment the load failure counter; success publishes the profile.
func (l *Loader) Load() (Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.load()
	if err != nil {
		metrics.IncConfigLoadFailure()
		return Settings{}, err
	}
	metrics.SetConfigProfile(string(s.Profile))
	return s, nil
}

func (l *Loader) load() (Settings, error) {
	logger := log.WithComponent("config")

	baseDir, err := l.resolveBaseDir()
	if err != nil {
		return Settings{}, err
	}

	envFile := l.EnvFile()
	fileValues, found, err := readDotEnv(envFile)
	if err != nil {
		return Settings{}, fmt.Errorf("load env file: %w", err)
	}
	switch {
	case !found && l.explicitEnvFile:
		return Settings{}, fmt.Errorf("load env file: %s does not exist", envFile)
	case !found:
		logger.Warn().
			Str(log.FieldEvent, "config.env_file_missing").
			Str("path", envFile).
			Msg("env file not found, using process environment only")
	default:
		logger.Debug().
			Str("path", envFile).
			Int("keys", len(fileValues)).
			Msg("env file loaded")
	}
	l.envFileLoaded = found

	s, consumed, err := build(layeredLookup(l.lookup, fileValues), baseDir)
	l.consumedEnvKeys = consumed
	if err != nil {
		return Settings{}, err
	}

	for _, w := range Warnings(s) {
		logger.Warn().
			Str(log.FieldEvent, "config.deploy_check").
			Str(log.FieldProfile, string(s.Profile)).
			Msg(w)
	}
	return s, nil
}

func (l *Loader) resolveBaseDir() (string, error) {
	dir := l.baseDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve base dir: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	return abs, nil
}

// EnvFile returns the .env path the loader reads.
func (l *Loader) EnvFile() string {
	if l.envFile != "" {
		return l.envFile
	}
	return filepath.Join(l.baseDir, DotEnvFile)
}

// EnvFileLoaded reports whether the last Load found an env file.
func (l *Loader) EnvFileLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.envFileLoaded
}

// ConsumedEnvKeys returns the canonical keys read by the last Load, sorted.
func (l *Loader) ConsumedEnvKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneStringSlice(l.consumedEnvKeys)
}
