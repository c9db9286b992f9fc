// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config assembles the backend Settings from environment variables.
//
// The flow is linear: an optional .env file and the process environment are
// layered into one lookup, ReadEnv reads every registered key exactly once,
// ApplyProfile selects the production or development profile and Validate
// checks the result. Settings are read-only after Load returns.
//
// File layout:
//   - types.go, defaults.go: the Settings tree and its static values
//   - registry.go: inventory of every environment key
//   - env.go, runtime_env.go: typed reads with aggregated errors
//   - profile.go: production/development selection
//   - loader.go, dotenv.go: .env layering and the Load entry point
//   - logmask.go, fingerprint.go, diff.go: dump and comparison helpers
package config
