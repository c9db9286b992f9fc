// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/backend/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validEnv returns a complete environment for a development deployment.
func validEnv() map[string]string {
	return map[string]string{
		"APP_SECRET_KEY":                    "test-secret-key-0123456789",
		"EMAIL_HOST":                        "smtp.sendgrid.net",
		"EMAIL_HOST_USER":                   "apikey",
		"SENDGRID_API_KEY":                  "SG.test-key",
		"SENDGRID_SENDER_EMAIL":             "noreply@example.com",
		"FCM_TOKEN":                         "fcm-server-token",
		"VERIFICATION_CODE_EXPIRATION_TIME": "600",
		"TWILIO_FROM_NUMBER":                "+15005550006",
		"TWILIO_AUTH_TOKEN":                 "twilio-auth-token",
		"TWILIO_ACCOUNT_SID":                "ACtest",
		"AWS_STORAGE_BUCKET_NAME":           "backend-media",
		"AWS_ACCESS_KEY_ID":                 "AKIATEST",
		"AWS_SECRET_ACCESS_KEY":             "aws-secret",
		"AWS_S3_REGION_NAME":                "us-east-1",
		"APPSTORE_PHONE_NUMBER":             "+15555550100",
		"APPSTORE_OTP":                      "123456",
		"GOOGLE_MAPS_KEY":                   "maps-key",
		"POSTGRES_DB":                       "backend",
		"POSTGRES_USER":                     "backend",
		"POSTGRES_PASS":                     "pg-secret",
		"PG_HOST":                           "db",
		"PG_PORT":                           "5432",
	}
}

func lookupFrom(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func with(env map[string]string, kv ...string) map[string]string {
	out := make(map[string]string, len(env)+len(kv)/2)
	for k, v := range env {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func without(env map[string]string, keys ...string) map[string]string {
	out := with(env)
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func TestReadEnv_Defaults(t *testing.T) {
	s, err := ReadEnv(lookupFrom(validEnv()), "/srv/app")
	require.NoError(t, err)

	assert.False(t, s.Security.Debug)
	assert.False(t, s.Security.Production)
	assert.Equal(t, DefaultListenAddr, s.Server.ListenAddr)
	assert.Equal(t, "/srv/app/static", s.Static.StaticRoot)
	assert.Equal(t, "/srv/app/media", s.Static.MediaRoot)
	assert.Equal(t, []string{"/srv/app/templates"}, s.Templates.Dirs)
	assert.Equal(t, 5432, s.Database.Port)
	assert.Equal(t, 10*time.Minute, s.Auth.VerificationCodeExpiration)
	assert.Empty(t, s.Captcha.PublicKey)
}

func TestReadEnv_MissingRequired(t *testing.T) {
	registry, err := GetRegistry()
	require.NoError(t, err)

	for _, entry := range registry.Entries {
		if !entry.Required {
			continue
		}
		t.Run(entry.Env, func(t *testing.T) {
			_, err := ReadEnv(lookupFrom(without(validEnv(), entry.Env)), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingEnv)
			assert.Contains(t, err.Error(), entry.Env)

			var verr validate.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, []string{entry.Env}, verr.Fields())
		})
	}
}

func TestReadEnv_AllMissingReportedTogether(t *testing.T) {
	_, err := ReadEnv(lookupFrom(map[string]string{}), "")
	require.Error(t, err)

	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))

	var required []string
	for _, entry := range MustRegistry().Entries {
		if entry.Required {
			required = append(required, entry.Env)
		}
	}
	assert.Equal(t, required, verr.Fields())
}

func TestReadEnv_EmptyCountsAsMissing(t *testing.T) {
	_, err := ReadEnv(lookupFrom(with(validEnv(), "PG_HOST", "  ")), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingEnv)
	assert.Contains(t, err.Error(), "PG_HOST")
}

func TestReadEnv_Bools(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"True", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"NO", false},
		{"off", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, err := ReadEnv(lookupFrom(with(validEnv(), "APP_DEBUG", tt.raw)), "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Security.Debug)
		})
	}
}

func TestReadEnv_InvalidBoolIsError(t *testing.T) {
	_, err := ReadEnv(lookupFrom(with(validEnv(), "APP_PRODUCTION", "maybe")), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEnv)
	assert.Contains(t, err.Error(), "APP_PRODUCTION")
}

func TestReadEnv_LegacyAliases(t *testing.T) {
	env := without(validEnv(), "APP_SECRET_KEY")
	env = with(env, "DJANGO_SECRET_KEY", "legacy-secret", "DJANGO_PRODUCTION", "true")

	s, err := ReadEnv(lookupFrom(env), "")
	require.NoError(t, err)
	assert.Equal(t, "legacy-secret", s.Security.SecretKey)
	assert.True(t, s.Security.Production)
}

func TestReadEnv_AliasAgreementIsAccepted(t *testing.T) {
	env := with(validEnv(), "DJANGO_DEBUG", "1", "APP_DEBUG", "1")
	s, err := ReadEnv(lookupFrom(env), "")
	require.NoError(t, err)
	assert.True(t, s.Security.Debug)
}

func TestReadEnv_AliasConflict(t *testing.T) {
	env := with(validEnv(), "DJANGO_SECRET_KEY", "other-secret")

	_, err := ReadEnv(lookupFrom(env), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAliasConflict)
	assert.Contains(t, err.Error(), "DJANGO_SECRET_KEY")
	assert.NotContains(t, err.Error(), "other-secret")
}

func TestReadEnv_Port(t *testing.T) {
	for _, raw := range []string{"abc", "0", "70000", "-1"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ReadEnv(lookupFrom(with(validEnv(), "PG_PORT", raw)), "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEnv)
			assert.Contains(t, err.Error(), "PG_PORT")
		})
	}
}

func TestReadEnv_VerificationExpiration(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "600", want: 10 * time.Minute},
		{raw: "15m", want: 15 * time.Minute},
		{raw: "1h30m", want: 90 * time.Minute},
		{raw: "0", wantErr: true},
		{raw: "-5s", wantErr: true},
		{raw: "soon", wantErr: true},
		{raw: "9223372036", want: 9223372036 * time.Second},
		{raw: "9223372037", wantErr: true},
		{raw: "99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s, err := ReadEnv(lookupFrom(with(validEnv(), "VERIFICATION_CODE_EXPIRATION_TIME", tt.raw)), "")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidEnv)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Auth.VerificationCodeExpiration)
		})
	}
}

func TestReadEnv_Tracing(t *testing.T) {
	s, err := ReadEnv(lookupFrom(validEnv()), "")
	require.NoError(t, err)
	assert.False(t, s.Tracing.Enabled())
	assert.Equal(t, 1.0, s.Tracing.SampleRate)

	s, err = ReadEnv(lookupFrom(with(validEnv(),
		"APP_TRACING_EXPORTER", "GRPC",
		"APP_TRACING_ENDPOINT", "otel-collector:4317",
		"APP_TRACING_SAMPLE_RATE", "0.25",
	)), "")
	require.NoError(t, err)
	assert.True(t, s.Tracing.Enabled())
	assert.Equal(t, TracingExporterGRPC, s.Tracing.Exporter)
	assert.Equal(t, 0.25, s.Tracing.SampleRate)

	_, err = ReadEnv(lookupFrom(with(validEnv(), "APP_TRACING_SAMPLE_RATE", "most")), "")
	assert.ErrorIs(t, err, ErrInvalidEnv)
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(lookupFrom(validEnv()), "/srv/app")
	require.NoError(t, err)
	b, err := Build(lookupFrom(validEnv()), "/srv/app")
	require.NoError(t, err)

	assert.Equal(t, a, b)

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	c, err := Build(lookupFrom(with(validEnv(), "PG_HOST", "db2")), "/srv/app")
	require.NoError(t, err)
	fc, err := Fingerprint(c)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestParseBool(t *testing.T) {
	_, err := parseBool("enabled")
	assert.Error(t, err)
}
