// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"net"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names resolve without a system tz database

	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/validate"
	"golang.org/x/text/language"
)

var (
	bucketNamePattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	phoneNumberPattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
)

// middlewareOrder lists stage pairs where the first must run before the second.
var middlewareOrder = [][2]string{
	{MiddlewareSessions, MiddlewareAuth},
	{MiddlewareSessions, MiddlewareMessages},
	{MiddlewareCORS, MiddlewareCommon},
	{MiddlewareCSRF, MiddlewareCORSPostCSRF},
}

// Validate validates Settings using the centralized validation package.
// Every failure is reported; the returned error is a validate.ValidationError.
func Validate(s Settings) error {
	v := validate.New()

	v.OneOf("profile", string(s.Profile), []string{string(ProfileProduction), string(ProfileDevelopment)})
	if s.Profile != ProfileFor(s.Security.Production) {
		v.AddError("profile", "profile does not match security.production", s.Profile)
	}
	validateListenAddr(v, "server.listenAddr", s.Server.ListenAddr)

	// Security
	v.NotEmpty("security.secretKey", s.Security.SecretKey)
	if len(s.Security.AllowedHosts) == 0 {
		v.AddError("security.allowedHosts", "at least one host pattern is required", nil)
	}
	v.OneOf("security.frameOptions", s.Security.FrameOptions, []string{"DENY", "SAMEORIGIN"})
	if h := s.Security.ProxySSLHeader; h != nil {
		v.NotEmpty("security.proxySSLHeader.header", h.Header)
		v.NotEmpty("security.proxySSLHeader.value", h.Value)
	}

	validateMiddleware(v, s.Middleware)
	validateI18N(v, s.I18N)

	// Static
	if !strings.HasSuffix(s.Static.StaticURL, "/") {
		v.AddError("static.staticUrl", "URL must end with a slash", s.Static.StaticURL)
	}
	if !strings.HasSuffix(s.Static.MediaURL, "/") {
		v.AddError("static.mediaUrl", "URL must end with a slash", s.Static.MediaURL)
	}
	if s.Static.StaticURL == s.Static.MediaURL {
		v.AddError("static.mediaUrl", "media and static URLs must differ", s.Static.MediaURL)
	}

	// Email
	v.NotEmpty("email.host", s.Email.Host)
	v.Port("email.port", s.Email.Port)
	v.Email("email.senderEmail", s.Email.SenderEmail)
	v.NotEmpty("email.sendgridApiKey", s.Email.SendGridAPIKey)

	// Task queue
	v.URL("taskQueue.brokerUrl", s.TaskQueue.BrokerURL, []string{"redis", "rediss"})
	v.OneOf("taskQueue.resultBackend", s.TaskQueue.ResultBackend, []string{ResultBackendDatabase, ResultBackendRedis})
	if len(s.TaskQueue.AcceptContent) == 0 {
		v.AddError("taskQueue.acceptContent", "at least one content type is required", nil)
	}
	v.OneOf("taskQueue.taskSerializer", s.TaskQueue.TaskSerializer, s.TaskQueue.AcceptContent)

	validateChannelLayers(v, s.ChannelLayers)

	// Tokens
	v.OneOf("token.secureHashAlgorithm", s.Token.SecureHashAlgorithm, []string{"sha512", "sha256"})
	v.Range("token.characterLength", s.Token.CharacterLength, 16, 128)
	v.Range("token.keyLength", s.Token.KeyLength, 4, s.Token.CharacterLength-1)
	if s.Token.TTL < 0 {
		v.AddError("token.ttl", "ttl must not be negative", s.Token.TTL)
	}
	v.PositiveDuration("auth.verificationCodeExpiration", s.Auth.VerificationCodeExpiration)

	// SMS
	if !phoneNumberPattern.MatchString(s.SMS.FromNumber) {
		v.AddError("sms.fromNumber", "must be an E.164 phone number", s.SMS.FromNumber)
	}
	v.NotEmpty("sms.accountSid", s.SMS.AccountSID)
	v.NotEmpty("sms.authToken", s.SMS.AuthToken)

	// Storage
	if !bucketNamePattern.MatchString(s.Storage.Bucket) {
		v.AddError("storage.bucket", "invalid bucket name", s.Storage.Bucket)
	}
	v.NotEmpty("storage.region", s.Storage.Region)
	v.NotEmpty("storage.accessKeyId", s.Storage.AccessKeyID)
	v.NotEmpty("storage.secretAccessKey", s.Storage.SecretAccessKey)

	// Database
	v.NotEmpty("database.name", s.Database.Name)
	v.NotEmpty("database.user", s.Database.User)
	v.NotEmpty("database.host", s.Database.Host)
	v.Port("database.port", s.Database.Port)

	// Maps
	v.Range("maps.pointFieldWidget.zoom", s.Maps.PointFieldWidget.Zoom, 0, 21)
	v.Range("maps.pointFieldWidget.markerFitZoom", s.Maps.PointFieldWidget.MarkerFitZoom, 0, 21)

	// Captcha keys come as a pair.
	if (s.Captcha.PublicKey == "") != (s.Captcha.PrivateKey == "") {
		v.AddError("captcha", "public and private keys must be set together", nil)
	}

	validatePasswordValidators(v, s.PasswordValidators)
	validateLogging(v, s.Logging)

	// Tracing
	v.OneOf("tracing.exporter", s.Tracing.Exporter, []string{TracingExporterNone, TracingExporterGRPC, TracingExporterHTTP})
	if s.Tracing.Enabled() {
		v.NotEmpty("tracing.endpoint", s.Tracing.Endpoint)
	}
	if s.Tracing.SampleRate < 0 || s.Tracing.SampleRate > 1 {
		v.AddError("tracing.sampleRate", "sample rate must be between 0 and 1", s.Tracing.SampleRate)
	}

	return v.Err()
}

func validateListenAddr(v *validate.Validator, field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		v.AddError(field, "port must be numeric", addr)
		return
	}
	v.Port(field, p)
}

func validateMiddleware(v *validate.Validator, chain []string) {
	known := KnownMiddleware()
	seen := make(map[string]int, len(chain))
	for i, name := range chain {
		if !slices.Contains(known, name) {
			v.AddError("middleware", fmt.Sprintf("unknown middleware stage %q", name), name)
			continue
		}
		if _, dup := seen[name]; dup {
			v.AddError("middleware", fmt.Sprintf("middleware stage %q listed twice", name), name)
			continue
		}
		seen[name] = i
	}
	for _, pair := range middlewareOrder {
		before, okBefore := seen[pair[0]]
		after, okAfter := seen[pair[1]]
		if !okAfter {
			continue
		}
		if !okBefore && pair[0] == MiddlewareSessions {
			v.AddError("middleware", fmt.Sprintf("%q requires %q", pair[1], pair[0]), nil)
			continue
		}
		if okBefore && before > after {
			v.AddError("middleware", fmt.Sprintf("%q must come before %q", pair[0], pair[1]), nil)
		}
	}
}

func validateI18N(v *validate.Validator, i I18NConfig) {
	if _, err := language.Parse(i.LanguageCode); err != nil {
		v.AddError("i18n.languageCode", fmt.Sprintf("invalid language tag: %v", err), i.LanguageCode)
	}
	if _, err := time.LoadLocation(i.TimeZone); err != nil {
		v.AddError("i18n.timeZone", fmt.Sprintf("unknown time zone: %v", err), i.TimeZone)
	}
}

func validateChannelLayers(v *validate.Validator, layers map[string]ChannelLayerConfig) {
	if _, ok := layers[DefaultChannelLayerAlias]; !ok {
		v.AddError("channelLayers", "a \"default\" channel layer is required", nil)
	}
	aliases := make([]string, 0, len(layers))
	for alias := range layers {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		layer := layers[alias]
		prefix := "channelLayers." + alias
		v.OneOf(prefix+".backend", layer.Backend, []string{"redis"})
		if len(layer.Hosts) == 0 {
			v.AddError(prefix+".hosts", "at least one host is required", nil)
		}
		for i, h := range layer.Hosts {
			field := fmt.Sprintf("%s.hosts[%d]", prefix, i)
			v.NotEmpty(field+".host", h.Host)
			v.Port(field+".port", h.Port)
		}
		v.Positive(prefix+".capacity", layer.Capacity)
		v.PositiveDuration(prefix+".expiry", layer.Expiry)
		v.PositiveDuration(prefix+".groupExpiry", layer.GroupExpiry)
	}
}

func validatePasswordValidators(v *validate.Validator, validators []PasswordValidatorConfig) {
	known := []string{PasswordUserAttributeSimilarity, PasswordMinimumLength, PasswordCommon, PasswordNumeric}
	for i, pv := range validators {
		field := fmt.Sprintf("passwordValidators[%d]", i)
		v.OneOf(field+".name", pv.Name, known)
		switch pv.Name {
		case PasswordMinimumLength:
			v.Positive(field+".minLength", pv.MinLength)
		case PasswordUserAttributeSimilarity:
			if pv.MaxSimilarity < 0.1 || pv.MaxSimilarity > 1 {
				v.AddError(field+".maxSimilarity", "must be between 0.1 and 1", pv.MaxSimilarity)
			}
		}
	}
}

func validateLogging(v *validate.Validator, l LoggingConfig) {
	if len(l.Handlers) == 0 {
		v.AddError("logging.handlers", "at least one handler is required", nil)
	}
	for name, h := range l.Handlers {
		if _, err := log.ParseLevel(h.Level); err != nil {
			v.AddError("logging.handlers."+name+".level", err.Error(), h.Level)
		}
	}
	for _, name := range l.LoggerNames() {
		lc := l.Loggers[name]
		if _, err := log.ParseLevel(lc.Level); err != nil {
			v.AddError("logging.loggers."+name+".level", err.Error(), lc.Level)
		}
		for _, h := range lc.Handlers {
			if _, ok := l.Handlers[h]; !ok {
				v.AddError("logging.loggers."+name+".handlers", fmt.Sprintf("unknown handler %q", h), h)
			}
		}
	}
}

// Warnings returns deployment advisories that do not block startup.
func Warnings(s Settings) []string {
	var out []string
	if s.Profile != ProfileProduction {
		return out
	}
	if s.Security.Debug {
		out = append(out, "debug is enabled in production")
	}
	if s.CORS.OriginAllowAll {
		out = append(out, "CORS allows every origin in production")
	}
	if slices.Contains(s.Security.AllowedHosts, "*") {
		out = append(out, "allowed hosts accept any host header in production")
	}
	if len(s.Security.SecretKey) < 50 {
		out = append(out, "secret key is shorter than 50 characters")
	}
	if s.Captcha.PublicKey == "" {
		out = append(out, "captcha keys are not configured")
	}
	return out
}
