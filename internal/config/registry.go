// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"sync"
)

// EnvEntry defines a single environment variable's metadata.
type EnvEntry struct {
	Env      string   // Environment variable (e.g. "PG_PORT")
	Path     string   // Settings path in yaml notation (e.g. "database.port")
	Required bool     // Unset or empty aborts loading
	Secret   bool     // Value is masked in dumps and never logged
	Default  string   // Raw default for optional keys
	Aliases  []string // Legacy names accepted in place of Env
	Help     string
}

// Registry is the inventory of every environment variable ReadEnv consumes.
type Registry struct {
	Entries []EnvEntry // declaration order
	ByEnv   map[string]EnvEntry
	ByPath  map[string]EnvEntry
	byAlias map[string]string
}

var (
	globalRegistry    *Registry
	globalRegistryErr error
	registryOnce      sync.Once
)

// GetRegistry returns the global environment registry.
// It returns an error if the registry contains duplicates.
// Thread-safe via sync.Once.
func GetRegistry() (*Registry, error) {
	registryOnce.Do(func() {
		globalRegistry, globalRegistryErr = buildRegistry(registryEntries)
	})
	return globalRegistry, globalRegistryErr
}

// MustRegistry is GetRegistry for callers that run after a successful Load.
func MustRegistry() *Registry {
	r, err := GetRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

var registryEntries = []EnvEntry{
	// --- SECURITY ---
	{Env: "APP_SECRET_KEY", Path: "security.secretKey", Required: true, Secret: true, Aliases: []string{"DJANGO_SECRET_KEY"}, Help: "signing secret for sessions, CSRF and tokens"},
	{Env: "APP_DEBUG", Path: "security.debug", Default: "false", Aliases: []string{"DJANGO_DEBUG"}, Help: "debug mode"},
	{Env: "APP_PRODUCTION", Path: "security.production", Default: "false", Aliases: []string{"DJANGO_PRODUCTION"}, Help: "selects the production profile"},
	{Env: "APP_LISTEN", Path: "server.listenAddr", Default: DefaultListenAddr, Help: "HTTP listen address"},

	// --- EMAIL ---
	{Env: "EMAIL_HOST", Path: "email.host", Required: true},
	{Env: "EMAIL_HOST_USER", Path: "email.hostUser", Required: true},
	{Env: "SENDGRID_API_KEY", Path: "email.sendgridApiKey", Required: true, Secret: true},
	{Env: "SENDGRID_SENDER_EMAIL", Path: "email.senderEmail", Required: true, Help: "From address of outgoing mail"},

	// --- PUSH ---
	{Env: "FCM_TOKEN", Path: "push.fcmToken", Required: true, Secret: true, Help: "Firebase Cloud Messaging server token"},

	// --- AUTH ---
	{Env: "VERIFICATION_CODE_EXPIRATION_TIME", Path: "auth.verificationCodeExpiration", Required: true, Help: "duration (10m) or integer seconds"},

	// --- SMS ---
	{Env: "TWILIO_FROM_NUMBER", Path: "sms.fromNumber", Required: true},
	{Env: "TWILIO_AUTH_TOKEN", Path: "sms.authToken", Required: true, Secret: true},
	{Env: "TWILIO_ACCOUNT_SID", Path: "sms.accountSid", Required: true, Secret: true},

	// --- STORAGE ---
	{Env: "AWS_STORAGE_BUCKET_NAME", Path: "storage.bucket", Required: true},
	{Env: "AWS_ACCESS_KEY_ID", Path: "storage.accessKeyId", Required: true, Secret: true},
	{Env: "AWS_SECRET_ACCESS_KEY", Path: "storage.secretAccessKey", Required: true, Secret: true},
	{Env: "AWS_S3_REGION_NAME", Path: "storage.region", Required: true},

	// --- APP STORE REVIEW ---
	{Env: "APPSTORE_PHONE_NUMBER", Path: "appStoreDemo.phoneNumber", Required: true},
	{Env: "APPSTORE_OTP", Path: "appStoreDemo.otp", Required: true, Secret: true},

	// --- MAPS / CAPTCHA ---
	{Env: "GOOGLE_MAPS_KEY", Path: "maps.apiKey", Required: true, Secret: true},
	{Env: "RECAPTCHA_PUBLIC_KEY", Path: "captcha.publicKey"},
	{Env: "RECAPTCHA_PRIVATE_KEY", Path: "captcha.privateKey", Secret: true},

	// --- DATABASE ---
	{Env: "POSTGRES_DB", Path: "database.name", Required: true},
	{Env: "POSTGRES_USER", Path: "database.user", Required: true},
	{Env: "POSTGRES_PASS", Path: "database.password", Required: true, Secret: true},
	{Env: "PG_HOST", Path: "database.host", Required: true},
	{Env: "PG_PORT", Path: "database.port", Required: true},

	// --- TRACING ---
	{Env: "APP_TRACING_EXPORTER", Path: "tracing.exporter", Default: TracingExporterNone, Help: "none, grpc or http"},
	{Env: "APP_TRACING_ENDPOINT", Path: "tracing.endpoint", Help: "OTLP collector host:port"},
	{Env: "APP_TRACING_SAMPLE_RATE", Path: "tracing.sampleRate", Default: "1.0", Help: "fraction of traces sampled (0.0 to 1.0)"},
}

func buildRegistry(entries []EnvEntry) (*Registry, error) {
	r := &Registry{
		Entries: make([]EnvEntry, 0, len(entries)),
		ByEnv:   make(map[string]EnvEntry, len(entries)),
		ByPath:  make(map[string]EnvEntry, len(entries)),
		byAlias: make(map[string]string),
	}

	for _, e := range entries {
		if e.Env == "" || e.Path == "" {
			return nil, fmt.Errorf("registry entry %+v lacks env or path", e)
		}
		if _, exists := r.ByEnv[e.Env]; exists {
			return nil, fmt.Errorf("duplicate env key in registry: %s", e.Env)
		}
		if _, exists := r.byAlias[e.Env]; exists {
			return nil, fmt.Errorf("env key %s is already an alias", e.Env)
		}
		if _, exists := r.ByPath[e.Path]; exists {
			return nil, fmt.Errorf("duplicate path in registry: %s", e.Path)
		}
		if e.Required && e.Default != "" {
			return nil, fmt.Errorf("required env key %s must not declare a default", e.Env)
		}
		for _, alias := range e.Aliases {
			if _, exists := r.ByEnv[alias]; exists {
				return nil, fmt.Errorf("alias %s shadows env key", alias)
			}
			if owner, exists := r.byAlias[alias]; exists {
				return nil, fmt.Errorf("alias %s claimed by %s and %s", alias, owner, e.Env)
			}
			r.byAlias[alias] = e.Env
		}
		r.Entries = append(r.Entries, e)
		r.ByEnv[e.Env] = e
		r.ByPath[e.Path] = e
	}
	return r, nil
}

// Envs returns the canonical env names in declaration order.
func (r *Registry) Envs() []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Env
	}
	return out
}

// Canonical resolves a legacy alias to its canonical name.
func (r *Registry) Canonical(key string) (string, bool) {
	if _, ok := r.ByEnv[key]; ok {
		return key, true
	}
	owner, ok := r.byAlias[key]
	return owner, ok
}

// IsSecretEnv reports whether the key (or alias) names a secret.
func (r *Registry) IsSecretEnv(key string) bool {
	canonical, ok := r.Canonical(key)
	if !ok {
		return false
	}
	return r.ByEnv[canonical].Secret
}
