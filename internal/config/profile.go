// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"io"
	"sort"

	"github.com/ManuGH/backend/internal/log"
)

// Profile names the environment-dependent policy applied to Settings.
type Profile string

const (
	ProfileProduction  Profile = "production"
	ProfileDevelopment Profile = "development"
)

// Password validator names.
const (
	PasswordUserAttributeSimilarity = "user_attribute_similarity"
	PasswordMinimumLength           = "minimum_length"
	PasswordCommon                  = "common_password"
	PasswordNumeric                 = "numeric_password"
)

// Logger names used by the logging profiles.
const (
	LoggerCore    = "core"
	LoggerBackend = "backend"
	LoggerOSW4L   = "osw4l"

	HandlerConsole = "console"
)

// ProfileFor maps the production flag to a Profile.
func ProfileFor(production bool) Profile {
	if production {
		return ProfileProduction
	}
	return ProfileDevelopment
}

// ApplyProfile returns a copy of s with the policy of its profile applied.
// The production flag is the only input; everything else is static.
func ApplyProfile(s Settings) Settings {
	out := Clone(s)
	out.Profile = ProfileFor(s.Security.Production)
	out.CORS.OriginWhitelist = []string{}

	if out.Profile == ProfileProduction {
		out.PasswordValidators = productionPasswordValidators()
		out.Security.ProxySSLHeader = &HeaderMatch{Header: "X-Forwarded-Proto", Value: "https"}
		out.Logging = productionLogging()
		return out
	}

	out.PasswordValidators = []PasswordValidatorConfig{}
	out.Security.ProxySSLHeader = nil
	out.Logging = developmentLogging()
	return out
}

func productionPasswordValidators() []PasswordValidatorConfig {
	return []PasswordValidatorConfig{
		{
			Name:           PasswordUserAttributeSimilarity,
			MaxSimilarity:  0.7,
			UserAttributes: []string{"username", "first_name", "last_name", "email"},
		},
		{Name: PasswordMinimumLength, MinLength: 8},
		{Name: PasswordCommon},
		{Name: PasswordNumeric},
	}
}

func productionLogging() LoggingConfig {
	return LoggingConfig{
		Version:                1,
		DisableExistingLoggers: false,
		Handlers: map[string]HandlerConfig{
			HandlerConsole: {Level: "INFO", Class: "stream"},
		},
		Loggers: map[string]LoggerConfig{
			LoggerCore: {Level: "INFO", Handlers: []string{HandlerConsole}},
		},
	}
}

func developmentLogging() LoggingConfig {
	return LoggingConfig{
		Version:                1,
		DisableExistingLoggers: false,
		Handlers: map[string]HandlerConfig{
			HandlerConsole: {Level: "DEBUG", Class: "stream"},
		},
		Loggers: map[string]LoggerConfig{
			LoggerCore:    {Level: "DEBUG", Handlers: []string{HandlerConsole}},
			LoggerBackend: {Level: "DEBUG", Handlers: []string{HandlerConsole}},
			LoggerOSW4L:   {Level: "WARNING", Handlers: []string{HandlerConsole}},
		},
	}
}

// LogConfig translates the logging profile into a log.Config writing to out.
func (l LoggingConfig) LogConfig(out io.Writer, version string) log.Config {
	loggers := make(map[string]string, len(l.Loggers))
	for name, lc := range l.Loggers {
		loggers[name] = lc.Level
	}
	return log.Config{
		Level:   l.Handlers[HandlerConsole].Level,
		Loggers: loggers,
		Output:  out,
		Version: version,
	}
}

// LoggerNames returns the configured logger names, sorted.
func (l LoggingConfig) LoggerNames() []string {
	out := make([]string, 0, len(l.Loggers))
	for name := range l.Loggers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
