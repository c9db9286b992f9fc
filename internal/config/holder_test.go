// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_ReloadSwapsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, validEnv())
	loader := NewLoader(dir, WithLookup(lookupFrom(nil)))
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	updates := make(chan Settings, 1)
	h.Subscribe(updates)

	changes, err := h.Reload()
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Len(t, updates, 0, "unchanged settings are not broadcast")

	writeEnvFile(t, dir, with(validEnv(), "PG_HOST", "replica", "POSTGRES_PASS", "rotated"))
	changes, err = h.Reload()
	require.NoError(t, err)
	assert.Contains(t, changes, Change{Path: "database.host", Old: "db", New: "replica"})
	assert.Contains(t, changes, Change{Path: "database.password", Old: Masked, New: Masked})
	assert.Equal(t, "replica", h.Get().Database.Host)

	select {
	case s := <-updates:
		assert.Equal(t, "replica", s.Database.Host)
	default:
		t.Fatal("expected a settings update")
	}
}

func TestHolder_ConcurrentReloads(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, validEnv())
	loader := NewLoader(dir, WithLookup(lookupFrom(nil)))
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	writeEnvFile(t, dir, with(validEnv(), "PG_HOST", "replica"))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Reload()
			errs <- err
			_ = loader.ConsumedEnvKeys()
			_ = loader.EnvFileLoaded()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, "replica", h.Get().Database.Host)
	assert.True(t, loader.EnvFileLoaded())
	assert.Contains(t, loader.ConsumedEnvKeys(), "PG_HOST")
}

func TestHolder_FailedReloadKeepsSettings(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, validEnv())
	loader := NewLoader(dir, WithLookup(lookupFrom(nil)))
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	env := validEnv()
	delete(env, "PG_HOST")
	writeEnvFile(t, dir, env)

	_, err = h.Reload()
	require.ErrorIs(t, err, ErrMissingEnv)
	assert.Equal(t, "db", h.Get().Database.Host)
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, validEnv())
	loader := NewLoader(dir, WithLookup(lookupFrom(nil)))
	initial, err := loader.Load()
	require.NoError(t, err)
	h := NewHolder(initial, loader)

	updates := make(chan Settings, 1)
	h.Subscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))

	writeEnvFile(t, dir, with(validEnv(), "APP_LISTEN", ":9000"))

	select {
	case s := <-updates:
		assert.Equal(t, ":9000", s.Server.ListenAddr)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload")
	}
}
