// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"strings"
)

// ReadEnv reads every registered environment variable exactly once through
// lookup and returns the Settings they describe, rooted at baseDir. The
// profile is not applied yet.
//
// All missing, invalid or conflicting keys are reported together in a single
// validate.ValidationError; each entry matches ErrMissingEnv, ErrInvalidEnv or
// ErrAliasConflict via errors.Is.
func ReadEnv(lookup LookupFunc, baseDir string) (Settings, error) {
	s, _, err := readEnv(lookup, baseDir)
	return s, err
}

func readEnv(lookup LookupFunc, baseDir string) (Settings, []string, error) {
	registry, err := GetRegistry()
	if err != nil {
		return Settings{}, nil, err
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	r := newEnvReader(lookup, registry)
	s := Defaults(baseDir)

	s.Security.SecretKey = r.String("APP_SECRET_KEY")
	s.Security.Debug = r.Bool("APP_DEBUG")
	s.Security.Production = r.Bool("APP_PRODUCTION")
	s.Server.ListenAddr = r.String("APP_LISTEN")

	s.Email.Host = r.String("EMAIL_HOST")
	s.Email.HostUser = r.String("EMAIL_HOST_USER")
	s.Email.SendGridAPIKey = r.String("SENDGRID_API_KEY")
	s.Email.SenderEmail = r.String("SENDGRID_SENDER_EMAIL")

	s.Push.FCMToken = r.String("FCM_TOKEN")

	s.Auth.VerificationCodeExpiration = r.Duration("VERIFICATION_CODE_EXPIRATION_TIME")

	s.SMS.FromNumber = r.String("TWILIO_FROM_NUMBER")
	s.SMS.AuthToken = r.String("TWILIO_AUTH_TOKEN")
	s.SMS.AccountSID = r.String("TWILIO_ACCOUNT_SID")

	s.Storage.Bucket = r.String("AWS_STORAGE_BUCKET_NAME")
	s.Storage.AccessKeyID = r.String("AWS_ACCESS_KEY_ID")
	s.Storage.SecretAccessKey = r.String("AWS_SECRET_ACCESS_KEY")
	s.Storage.Region = r.String("AWS_S3_REGION_NAME")

	s.AppStoreDemo.PhoneNumber = r.String("APPSTORE_PHONE_NUMBER")
	s.AppStoreDemo.OTP = r.String("APPSTORE_OTP")

	s.Maps.APIKey = r.String("GOOGLE_MAPS_KEY")
	s.Captcha.PublicKey = r.String("RECAPTCHA_PUBLIC_KEY")
	s.Captcha.PrivateKey = r.String("RECAPTCHA_PRIVATE_KEY")

	s.Database.Name = r.String("POSTGRES_DB")
	s.Database.User = r.String("POSTGRES_USER")
	s.Database.Password = r.String("POSTGRES_PASS")
	s.Database.Host = r.String("PG_HOST")
	s.Database.Port = r.Port("PG_PORT")

	s.Tracing.Exporter = strings.ToLower(r.String("APP_TRACING_EXPORTER"))
	s.Tracing.Endpoint = r.String("APP_TRACING_ENDPOINT")
	s.Tracing.SampleRate = r.Float("APP_TRACING_SAMPLE_RATE")

	consumed := r.ConsumedKeys()
	if err := r.Err(); err != nil {
		return Settings{}, consumed, err
	}
	return s, consumed, nil
}

// Build reads the environment, applies the selected profile and validates
// the result.
func Build(lookup LookupFunc, baseDir string) (Settings, error) {
	s, _, err := build(lookup, baseDir)
	return s, err
}

func build(lookup LookupFunc, baseDir string) (Settings, []string, error) {
	s, consumed, err := readEnv(lookup, baseDir)
	if err != nil {
		return Settings{}, consumed, err
	}
	s = ApplyProfile(s)
	if err := Validate(s); err != nil {
		return Settings{}, consumed, err
	}
	return s, consumed, nil
}
