// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/validate"
	"github.com/rs/zerolog"
)

// LookupFunc resolves one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// envReader reads registered keys through a lookup, collecting every failure
// instead of stopping at the first one.
type envReader struct {
	lookup   LookupFunc
	registry *Registry
	logger   zerolog.Logger
	v        *validate.Validator
	consumed map[string]struct{}
}

func newEnvReader(lookup LookupFunc, registry *Registry) *envReader {
	return &envReader{
		lookup:   lookup,
		registry: registry,
		logger:   log.WithComponent("config"),
		v:        validate.New(),
		consumed: make(map[string]struct{}),
	}
}

// get returns the trimmed value of a single name. Empty counts as unset.
func (r *envReader) get(name string) (string, bool) {
	v, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

// raw resolves key and its aliases. The canonical name wins; an alias set to
// a different value is reported as a conflict.
func (r *envReader) raw(key string) (value string, source string, ok bool) {
	entry, registered := r.registry.ByEnv[key]
	if !registered {
		r.v.AddError(key, "environment key is not registered", nil)
		return "", "", false
	}
	r.consumed[key] = struct{}{}

	value, ok = r.get(key)
	if ok {
		source = key
	}
	for _, alias := range entry.Aliases {
		aliasValue, set := r.get(alias)
		if !set {
			continue
		}
		if !ok {
			value, source, ok = aliasValue, alias, true
			continue
		}
		if aliasValue != value {
			r.v.AddCause(key, fmt.Errorf("%w: %s and %s are set to different values", ErrAliasConflict, source, alias), nil)
		}
	}
	return value, source, ok
}

// String returns the value of key, its default, or records ErrMissingEnv
// when the key is required.
func (r *envReader) String(key string) string {
	entry := r.registry.ByEnv[key]
	value, source, ok := r.raw(key)
	if !ok {
		if entry.Required {
			r.v.AddCause(key, ErrMissingEnv, nil)
			return ""
		}
		r.logger.Debug().
			Str(log.FieldKey, key).
			Str("default", entry.Default).
			Str(log.FieldSource, "default").
			Msg("using default value")
		return entry.Default
	}

	evt := r.logger.Debug().Str(log.FieldKey, key).Str(log.FieldSource, "environment")
	if source != key {
		evt = evt.Str("alias", source)
	}
	if entry.Secret {
		// For sensitive vars, just log that it was set
		evt.Bool("sensitive", true).Msg("using environment variable")
	} else {
		evt.Str("value", value).Msg("using environment variable")
	}
	return value
}

// Bool reads key as a boolean. Unrecognised values are errors, never defaults.
func (r *envReader) Bool(key string) bool {
	raw := r.String(key)
	if raw == "" {
		return false
	}
	b, err := parseBool(raw)
	if err != nil {
		r.invalid(key, raw, err)
		return false
	}
	return b
}

// Port reads key as a TCP port number.
func (r *envReader) Port(key string) int {
	raw := r.String(key)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		r.invalid(key, raw, fmt.Errorf("not an integer"))
		return 0
	}
	if port <= 0 || port > 65535 {
		r.invalid(key, raw, fmt.Errorf("port must be between 1 and 65535"))
		return 0
	}
	return port
}

// Float reads key as a floating point number.
func (r *envReader) Float(key string) float64 {
	raw := r.String(key)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.invalid(key, raw, fmt.Errorf("not a number"))
		return 0
	}
	return f
}

// Duration reads key as a Go duration or a bare number of seconds.
func (r *envReader) Duration(key string) time.Duration {
	raw := r.String(key)
	if raw == "" {
		return 0
	}
	d, err := parseDurationOrSeconds(raw)
	if err != nil {
		r.invalid(key, raw, err)
		return 0
	}
	if d <= 0 {
		r.invalid(key, raw, fmt.Errorf("duration must be positive"))
		return 0
	}
	return d
}

func (r *envReader) invalid(key, raw string, err error) {
	var value any = raw
	if r.registry.IsSecretEnv(key) {
		value = nil
	}
	r.v.AddCause(key, fmt.Errorf("%w: %w", ErrInvalidEnv, err), value)
}

// Err returns every missing, invalid or conflicting key as one error.
func (r *envReader) Err() error {
	return r.v.Err()
}

// ConsumedKeys returns the canonical keys read so far, sorted.
func (r *envReader) ConsumedKeys() []string {
	out := make([]string, 0, len(r.consumed))
	for k := range r.consumed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// parseBool accepts true/false, 1/0, yes/no and on/off (case-insensitive).
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not a boolean", s)
	}
}

const maxDurationSeconds = int64(math.MaxInt64 / time.Second)

// parseDurationOrSeconds accepts "10m" style durations and integer seconds ("600").
func parseDurationOrSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs > maxDurationSeconds || secs < -maxDurationSeconds {
			return 0, fmt.Errorf("%s seconds does not fit in a duration", s)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a duration nor a number of seconds", s)
	}
	return d, nil
}
