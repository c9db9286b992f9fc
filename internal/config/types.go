// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"slices"
	"time"
)

// Settings is the immutable, effective configuration of the backend.
// It is assembled once at process start and treated as read-only afterwards.
// Fields tagged mask:"true" hold secrets and are redacted by MaskSecrets.
type Settings struct {
	Profile  Profile        `yaml:"profile" json:"profile"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Security SecurityConfig `yaml:"security" json:"security"`

	InstalledApps []string `yaml:"installedApps" json:"installedApps"`
	Middleware    []string `yaml:"middleware" json:"middleware"`

	Templates TemplatesConfig `yaml:"templates" json:"templates"`
	I18N      I18NConfig      `yaml:"i18n" json:"i18n"`
	Static    StaticConfig    `yaml:"static" json:"static"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`

	Email         EmailConfig                   `yaml:"email" json:"email"`
	TaskQueue     TaskQueueConfig               `yaml:"taskQueue" json:"taskQueue"`
	ChannelLayers map[string]ChannelLayerConfig `yaml:"channelLayers" json:"channelLayers"`
	Push          PushConfig                    `yaml:"push" json:"push"`

	REST  RESTConfig  `yaml:"rest" json:"rest"`
	Token TokenConfig `yaml:"token" json:"token"`
	Auth  AuthConfig  `yaml:"auth" json:"auth"`

	SMS          SMSConfig          `yaml:"sms" json:"sms"`
	Storage      StorageConfig      `yaml:"storage" json:"storage"`
	AppStoreDemo AppStoreDemoConfig `yaml:"appStoreDemo" json:"appStoreDemo"`
	Maps         MapsConfig         `yaml:"maps" json:"maps"`
	Captcha      CaptchaConfig      `yaml:"captcha" json:"captcha"`
	Database     DatabaseConfig     `yaml:"database" json:"database"`

	PasswordValidators []PasswordValidatorConfig `yaml:"passwordValidators" json:"passwordValidators"`
	Logging            LoggingConfig             `yaml:"logging" json:"logging"`
	Tracing            TracingConfig             `yaml:"tracing" json:"tracing"`
}

// ServerConfig holds process-level paths and the HTTP listen address.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr" json:"listenAddr"`
	BaseDir    string `yaml:"baseDir" json:"baseDir"`
}

// HeaderMatch is a request header name/value pair.
type HeaderMatch struct {
	Header string `yaml:"header" json:"header"`
	Value  string `yaml:"value" json:"value"`
}

// SecurityConfig holds the signing secret and environment flags.
type SecurityConfig struct {
	SecretKey    string   `yaml:"secretKey" json:"secretKey" mask:"true"`
	Debug        bool     `yaml:"debug" json:"debug"`
	Production   bool     `yaml:"production" json:"production"`
	AllowedHosts []string `yaml:"allowedHosts" json:"allowedHosts"`
	// ProxySSLHeader marks a request as secure when the header carries the value.
	// nil outside production.
	ProxySSLHeader *HeaderMatch `yaml:"proxySSLHeader,omitempty" json:"proxySSLHeader,omitempty"`
	// FrameOptions is the X-Frame-Options value written by the clickjacking stage.
	FrameOptions string `yaml:"frameOptions" json:"frameOptions"`
}

type TemplatesConfig struct {
	Backend           string   `yaml:"backend" json:"backend"`
	Dirs              []string `yaml:"dirs" json:"dirs"`
	AppDirs           bool     `yaml:"appDirs" json:"appDirs"`
	ContextProcessors []string `yaml:"contextProcessors" json:"contextProcessors"`
}

type I18NConfig struct {
	LanguageCode string `yaml:"languageCode" json:"languageCode"`
	TimeZone     string `yaml:"timeZone" json:"timeZone"`
	UseI18N      bool   `yaml:"useI18n" json:"useI18n"`
	UseL10N      bool   `yaml:"useL10n" json:"useL10n"`
	UseTZ        bool   `yaml:"useTz" json:"useTz"`
}

type StaticConfig struct {
	StaticURL  string `yaml:"staticUrl" json:"staticUrl"`
	StaticRoot string `yaml:"staticRoot" json:"staticRoot"`
	MediaURL   string `yaml:"mediaUrl" json:"mediaUrl"`
	MediaRoot  string `yaml:"mediaRoot" json:"mediaRoot"`
}

// CORSConfig describes cross-origin policy. OriginAllowAll wins over the whitelist.
type CORSConfig struct {
	OriginAllowAll  bool     `yaml:"originAllowAll" json:"originAllowAll"`
	OriginWhitelist []string `yaml:"originWhitelist" json:"originWhitelist"`
	AllowHeaders    []string `yaml:"allowHeaders" json:"allowHeaders"`
	// ReplaceHTTPSReferer lets the CSRF stage see a trusted origin as Referer
	// for cross-origin HTTPS requests; the post-CSRF stage restores it.
	ReplaceHTTPSReferer bool `yaml:"replaceHttpsReferer" json:"replaceHttpsReferer"`
}

type EmailConfig struct {
	Backend            string `yaml:"backend" json:"backend"`
	Host               string `yaml:"host" json:"host"`
	HostUser           string `yaml:"hostUser" json:"hostUser"`
	Port               int    `yaml:"port" json:"port"`
	UseTLS             bool   `yaml:"useTls" json:"useTls"`
	SendGridAPIKey     string `yaml:"sendgridApiKey" json:"sendgridApiKey" mask:"true"`
	SenderEmail        string `yaml:"senderEmail" json:"senderEmail"`
	SandboxModeInDebug bool   `yaml:"sandboxModeInDebug" json:"sandboxModeInDebug"`
	EchoToStdout       bool   `yaml:"echoToStdout" json:"echoToStdout"`
}

type TaskQueueConfig struct {
	BrokerURL      string   `yaml:"brokerUrl" json:"brokerUrl"`
	ResultBackend  string   `yaml:"resultBackend" json:"resultBackend"`
	AcceptContent  []string `yaml:"acceptContent" json:"acceptContent"`
	TaskSerializer string   `yaml:"taskSerializer" json:"taskSerializer"`
}

// HostPort is one broker endpoint of a channel layer.
type HostPort struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type ChannelLayerConfig struct {
	Backend     string        `yaml:"backend" json:"backend"`
	Hosts       []HostPort    `yaml:"hosts" json:"hosts"`
	Prefix      string        `yaml:"prefix" json:"prefix"`
	Capacity    int           `yaml:"capacity" json:"capacity"`
	Expiry      time.Duration `yaml:"expiry" json:"expiry"`
	GroupExpiry time.Duration `yaml:"groupExpiry" json:"groupExpiry"`
}

type PushConfig struct {
	FCMToken string `yaml:"fcmToken" json:"fcmToken" mask:"true"`
}

type RESTConfig struct {
	AuthenticationClasses []string `yaml:"authenticationClasses" json:"authenticationClasses"`
	SchemaClass           string   `yaml:"schemaClass" json:"schemaClass"`
	PermissionClasses     []string `yaml:"permissionClasses" json:"permissionClasses"`
	CoerceDecimalToString bool     `yaml:"coerceDecimalToString" json:"coerceDecimalToString"`
}

// TokenConfig governs API token issuance. A zero TTL means tokens never expire.
type TokenConfig struct {
	SecureHashAlgorithm string        `yaml:"secureHashAlgorithm" json:"secureHashAlgorithm"`
	CharacterLength     int           `yaml:"characterLength" json:"characterLength"`
	KeyLength           int           `yaml:"keyLength" json:"keyLength"`
	TTL                 time.Duration `yaml:"ttl" json:"ttl"`
	AutoRefresh         bool          `yaml:"autoRefresh" json:"autoRefresh"`
	UserSerializer      string        `yaml:"userSerializer" json:"userSerializer"`
}

type AuthConfig struct {
	VerificationCodeExpiration time.Duration `yaml:"verificationCodeExpiration" json:"verificationCodeExpiration"`
}

type SMSConfig struct {
	FromNumber string `yaml:"fromNumber" json:"fromNumber"`
	AuthToken  string `yaml:"authToken" json:"authToken" mask:"true"`
	AccountSID string `yaml:"accountSid" json:"accountSid" mask:"true"`
}

type StorageConfig struct {
	Backend          string `yaml:"backend" json:"backend"`
	AutoCreateBucket bool   `yaml:"autoCreateBucket" json:"autoCreateBucket"`
	FileOverwrite    bool   `yaml:"fileOverwrite" json:"fileOverwrite"`
	Bucket           string `yaml:"bucket" json:"bucket"`
	AccessKeyID      string `yaml:"accessKeyId" json:"accessKeyId" mask:"true"`
	SecretAccessKey  string `yaml:"secretAccessKey" json:"secretAccessKey" mask:"true"`
	Region           string `yaml:"region" json:"region"`
}

type AppStoreDemoConfig struct {
	PhoneNumber string `yaml:"phoneNumber" json:"phoneNumber"`
	OTP         string `yaml:"otp" json:"otp" mask:"true"`
}

type AutocompleteOptions struct {
	ComponentRestrictions map[string]string `yaml:"componentRestrictions" json:"componentRestrictions"`
}

type PointFieldWidgetConfig struct {
	Zoom                  int                 `yaml:"zoom" json:"zoom"`
	MapCenterLocationName string              `yaml:"mapCenterLocationName" json:"mapCenterLocationName"`
	PlaceAutocomplete     AutocompleteOptions `yaml:"placeAutocompleteOptions" json:"placeAutocompleteOptions"`
	MarkerFitZoom         int                 `yaml:"markerFitZoom" json:"markerFitZoom"`
}

type MapsConfig struct {
	APIKey           string                 `yaml:"apiKey" json:"apiKey" mask:"true"`
	PointFieldWidget PointFieldWidgetConfig `yaml:"pointFieldWidget" json:"pointFieldWidget"`
}

// CaptchaConfig keys are optional; an empty pair leaves CAPTCHA checks to
// the provider's test keys.
type CaptchaConfig struct {
	PublicKey  string `yaml:"publicKey" json:"publicKey"`
	PrivateKey string `yaml:"privateKey" json:"privateKey" mask:"true"`
}

type DatabaseConfig struct {
	Engine     string `yaml:"engine" json:"engine"`
	Name       string `yaml:"name" json:"name"`
	User       string `yaml:"user" json:"user"`
	Password   string `yaml:"password" json:"password" mask:"true"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	AutoCommit bool   `yaml:"autoCommit" json:"autoCommit"`
}

type PasswordValidatorConfig struct {
	Name           string   `yaml:"name" json:"name"`
	MinLength      int      `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxSimilarity  float64  `yaml:"maxSimilarity,omitempty" json:"maxSimilarity,omitempty"`
	UserAttributes []string `yaml:"userAttributes,omitempty" json:"userAttributes,omitempty"`
}

type HandlerConfig struct {
	Level string `yaml:"level" json:"level"`
	Class string `yaml:"class" json:"class"`
}

type LoggerConfig struct {
	Level    string   `yaml:"level" json:"level"`
	Handlers []string `yaml:"handlers" json:"handlers"`
}

type LoggingConfig struct {
	Version                int                      `yaml:"version" json:"version"`
	DisableExistingLoggers bool                     `yaml:"disableExistingLoggers" json:"disableExistingLoggers"`
	Handlers               map[string]HandlerConfig `yaml:"handlers" json:"handlers"`
	Loggers                map[string]LoggerConfig  `yaml:"loggers" json:"loggers"`
}

// TracingConfig selects the OTLP trace exporter. Exporter "none" disables tracing.
type TracingConfig struct {
	Exporter   string  `yaml:"exporter" json:"exporter"`
	Endpoint   string  `yaml:"endpoint" json:"endpoint"`
	SampleRate float64 `yaml:"sampleRate" json:"sampleRate"`
}

// Enabled reports whether spans are exported.
func (t TracingConfig) Enabled() bool {
	return t.Exporter != "" && t.Exporter != TracingExporterNone
}

// AppInstalled reports whether the named subsystem is in InstalledApps.
func (s Settings) AppInstalled(name string) bool {
	return slices.Contains(s.InstalledApps, name)
}

// DefaultChannelLayer returns the "default" channel layer.
func (s Settings) DefaultChannelLayer() (ChannelLayerConfig, bool) {
	layer, ok := s.ChannelLayers[DefaultChannelLayerAlias]
	return layer, ok
}
