// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManuGH/backend/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, dir string, env map[string]string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("# backend test environment\n")
	for k, v := range env {
		b.WriteString(k + "=" + v + "\n")
	}
	path := filepath.Join(dir, DotEnvFile)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestLoader_EnvFileAndProcessPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, with(validEnv(), "PG_HOST", "file-db"))

	process := map[string]string{"PG_HOST": "process-db", "APP_PRODUCTION": "on"}
	loader := NewLoader(dir, WithLookup(lookupFrom(process)))

	s, err := loader.Load()
	require.NoError(t, err)
	assert.True(t, loader.EnvFileLoaded())
	assert.Equal(t, "process-db", s.Database.Host)
	assert.Equal(t, "backend", s.Database.Name)
	assert.Equal(t, ProfileProduction, s.Profile)
	assert.Equal(t, filepath.Join(dir, "static"), s.Static.StaticRoot)
}

func TestLoader_MissingEnvFileWarns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, log.Configure(log.Config{Level: "INFO", Output: &buf}))
	t.Cleanup(func() { _ = log.Configure(log.Config{}) })

	loader := NewLoader(t.TempDir(), WithLookup(lookupFrom(validEnv())))
	_, err := loader.Load()
	require.NoError(t, err)
	assert.False(t, loader.EnvFileLoaded())
	assert.Contains(t, buf.String(), "config.env_file_missing")
}

func TestLoader_ExplicitEnvFileMustExist(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(dir,
		WithLookup(lookupFrom(validEnv())),
		WithEnvFile(filepath.Join(dir, "missing.env")),
	)
	_, err := loader.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.env")
}

func TestLoader_ExplicitEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeEnvFile(t, dir, validEnv())
	renamed := filepath.Join(dir, "staging.env")
	require.NoError(t, os.Rename(path, renamed))

	loader := NewLoader(t.TempDir(), WithEnvFile(renamed), WithLookup(lookupFrom(nil)))
	s, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, renamed, loader.EnvFile())
	assert.Equal(t, "db", s.Database.Host)
}

func TestLoader_MissingKeysFail(t *testing.T) {
	loader := NewLoader(t.TempDir(), WithLookup(lookupFrom(without(validEnv(), "FCM_TOKEN", "PG_PORT"))))
	_, err := loader.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "FCM_TOKEN")
	assert.Contains(t, err.Error(), "PG_PORT")
}

func TestLayeredLookup_EmptyProcessValueWins(t *testing.T) {
	lookup := layeredLookup(lookupFrom(map[string]string{"A": ""}), map[string]string{"A": "file", "B": "file"})

	v, ok := lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	v, ok = lookup("B")
	assert.True(t, ok)
	assert.Equal(t, "file", v)

	_, ok = lookup("C")
	assert.False(t, ok)
}
