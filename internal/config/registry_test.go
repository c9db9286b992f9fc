// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ConsumedKeysMatchRegistry(t *testing.T) {
	loader := NewLoader(t.TempDir(), WithLookup(lookupFrom(validEnv())))
	_, err := loader.Load()
	require.NoError(t, err)

	want := MustRegistry().Envs()
	sort.Strings(want)
	assert.Equal(t, want, loader.ConsumedEnvKeys())
}

// fieldByYAMLPath walks t following yaml tag names.
func fieldByYAMLPath(t reflect.Type, path string) (reflect.StructField, bool) {
	var field reflect.StructField
	for _, part := range strings.Split(path, ".") {
		found := false
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == part {
				field, t, found = f, f.Type, true
				break
			}
		}
		if !found {
			return reflect.StructField{}, false
		}
	}
	return field, true
}

func TestRegistry_PathsResolveAndSecretsAreMasked(t *testing.T) {
	settingsType := reflect.TypeOf(Settings{})
	for _, entry := range MustRegistry().Entries {
		field, ok := fieldByYAMLPath(settingsType, entry.Path)
		require.True(t, ok, "path %s for %s does not resolve", entry.Path, entry.Env)
		assert.Equal(t, entry.Secret, isMaskedField(field), "mask tag mismatch for %s", entry.Env)
	}
}

func TestRegistry_Canonical(t *testing.T) {
	r := MustRegistry()

	got, ok := r.Canonical("DJANGO_DEBUG")
	require.True(t, ok)
	assert.Equal(t, "APP_DEBUG", got)

	_, ok = r.Canonical("UNKNOWN")
	assert.False(t, ok)

	assert.True(t, r.IsSecretEnv("DJANGO_SECRET_KEY"))
	assert.False(t, r.IsSecretEnv("PG_HOST"))
}

func TestBuildRegistry_RejectsDuplicates(t *testing.T) {
	tests := []struct {
		name    string
		entries []EnvEntry
	}{
		{"env", []EnvEntry{{Env: "A", Path: "a"}, {Env: "A", Path: "b"}}},
		{"path", []EnvEntry{{Env: "A", Path: "a"}, {Env: "B", Path: "a"}}},
		{"alias shadows env", []EnvEntry{{Env: "A", Path: "a"}, {Env: "B", Path: "b", Aliases: []string{"A"}}}},
		{"alias claimed twice", []EnvEntry{{Env: "A", Path: "a", Aliases: []string{"X"}}, {Env: "B", Path: "b", Aliases: []string{"X"}}}},
		{"required with default", []EnvEntry{{Env: "A", Path: "a", Required: true, Default: "x"}}},
		{"missing path", []EnvEntry{{Env: "A"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildRegistry(tt.entries)
			assert.Error(t, err)
		})
	}
}
