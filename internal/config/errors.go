// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "errors"

var (
	// ErrMissingEnv classifies a required environment variable that is unset or empty.
	// Use errors.Is(err, ErrMissingEnv) instead of string matching.
	ErrMissingEnv = errors.New("required environment variable not set")

	// ErrInvalidEnv classifies a value that cannot be parsed into its target type.
	ErrInvalidEnv = errors.New("invalid environment variable value")

	// ErrAliasConflict is returned when a canonical variable and its legacy
	// alias are both set to different values.
	ErrAliasConflict = errors.New("environment alias conflict")
)
