// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"path/filepath"
	"time"
)

// Installed subsystem names, grouped the way they are assembled.
const (
	AppAdmin        = "admin"
	AppAuth         = "auth"
	AppContentTypes = "contenttypes"
	AppSessions     = "sessions"
	AppMessages     = "messages"
	AppStaticFiles  = "staticfiles"
	AppGIS          = "gis"

	AppREST          = "rest"
	AppAuthToken     = "authtoken"
	AppSMS           = "sms"
	AppCORS          = "cors"
	AppRangeFilter   = "rangefilter"
	AppPeriodicTasks = "periodic_tasks"
	AppTaskResults   = "task_results"
	AppExtensions    = "extensions"
	AppChannels      = "channels"
	AppAPIDocs       = "api_docs"
	AppPush          = "push"
	AppCaptcha       = "captcha"
	AppMapWidgets    = "mapwidgets"

	AppProject      = "apps"
	AppProjectUtils = "apps.utils"
)

// Middleware stage names in their default order.
const (
	MiddlewareSecurity     = "security"
	MiddlewareSessions     = "sessions"
	MiddlewareCORS         = "cors"
	MiddlewareCommon       = "common"
	MiddlewareCSRF         = "csrf"
	MiddlewareCORSPostCSRF = "cors_post_csrf"
	MiddlewareAuth         = "auth"
	MiddlewareMessages     = "messages"
	MiddlewareClickjacking = "clickjacking"
)

const (
	DefaultChannelLayerAlias = "default"
	DefaultListenAddr        = ":8000"
	ResultBackendDatabase    = "database"
	ResultBackendRedis       = "redis"
	ContentTypeJSON          = "json"
)

const (
	TracingExporterNone = "none"
	TracingExporterGRPC = "grpc"
	TracingExporterHTTP = "http"
)

var (
	frameworkApps = []string{
		AppAdmin, AppAuth, AppContentTypes, AppSessions, AppMessages, AppStaticFiles, AppGIS,
	}
	thirdPartyApps = []string{
		AppREST, AppAuthToken, AppSMS, AppCORS, AppRangeFilter, AppPeriodicTasks, AppTaskResults,
		AppExtensions, AppChannels, AppAPIDocs, AppPush, AppCaptcha, AppMapWidgets,
	}
	projectApps = []string{AppProject, AppProjectUtils}

	defaultMiddleware = []string{
		MiddlewareSecurity,
		MiddlewareSessions,
		MiddlewareCORS,
		MiddlewareCommon,
		MiddlewareCSRF,
		MiddlewareCORSPostCSRF,
		MiddlewareAuth,
		MiddlewareMessages,
		MiddlewareClickjacking,
	}

	defaultCORSAllowHeaders = []string{
		"accept",
		"accept-encoding",
		"authorization",
		"content-type",
		"dnt",
		"origin",
		"user-agent",
		"x-csrftoken",
		"x-requested-with",
	}
)

// KnownMiddleware returns every stage name the middleware chain can build.
func KnownMiddleware() []string {
	return cloneStringSlice(defaultMiddleware)
}

// InstalledApps returns the framework, third-party and project subsystems in order.
func InstalledApps() []string {
	out := make([]string, 0, len(frameworkApps)+len(thirdPartyApps)+len(projectApps))
	out = append(out, frameworkApps...)
	out = append(out, thirdPartyApps...)
	out = append(out, projectApps...)
	return out
}

// Defaults returns the static part of Settings. Paths are rooted at baseDir.
// Environment-sourced fields are left zero and filled by ReadEnv.
func Defaults(baseDir string) Settings {
	return Settings{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			BaseDir:    baseDir,
		},
		Security: SecurityConfig{
			AllowedHosts: []string{"*"},
			FrameOptions: "SAMEORIGIN",
		},
		InstalledApps: InstalledApps(),
		Middleware:    KnownMiddleware(),
		Templates: TemplatesConfig{
			Backend: "html/template",
			Dirs:    []string{filepath.Join(baseDir, "templates")},
			AppDirs: true,
			ContextProcessors: []string{
				"debug",
				"request",
				"auth",
				"messages",
			},
		},
		I18N: I18NConfig{
			LanguageCode: "es-co",
			TimeZone:     "America/Bogota",
			UseI18N:      true,
			UseL10N:      true,
			UseTZ:        true,
		},
		Static: StaticConfig{
			StaticURL:  "/static/",
			StaticRoot: filepath.Join(baseDir, "static"),
			MediaURL:   "/media/",
			MediaRoot:  filepath.Join(baseDir, "media"),
		},
		CORS: CORSConfig{
			OriginAllowAll:  true,
			OriginWhitelist: []string{},
			AllowHeaders:    cloneStringSlice(defaultCORSAllowHeaders),
		},
		Email: EmailConfig{
			Backend:            "sendgrid",
			Port:               587,
			UseTLS:             true,
			SandboxModeInDebug: false,
			EchoToStdout:       false,
		},
		TaskQueue: TaskQueueConfig{
			BrokerURL:      "redis://redis:6379",
			ResultBackend:  ResultBackendDatabase,
			AcceptContent:  []string{ContentTypeJSON},
			TaskSerializer: ContentTypeJSON,
		},
		ChannelLayers: map[string]ChannelLayerConfig{
			DefaultChannelLayerAlias: {
				Backend:     "redis",
				Hosts:       []HostPort{{Host: "redis", Port: 6379}},
				Prefix:      "asgi",
				Capacity:    100,
				Expiry:      60 * time.Second,
				GroupExpiry: 86400 * time.Second,
			},
		},
		REST: RESTConfig{
			AuthenticationClasses: []string{"token", "basic", "session"},
			SchemaClass:           "auto",
			PermissionClasses:     []string{"allow_any"},
			CoerceDecimalToString: false,
		},
		Token: TokenConfig{
			SecureHashAlgorithm: "sha512",
			CharacterLength:     64,
			KeyLength:           8,
			TTL:                 0,
			AutoRefresh:         false,
			UserSerializer:      "user",
		},
		Storage: StorageConfig{
			Backend:          "s3",
			AutoCreateBucket: true,
			FileOverwrite:    false,
		},
		Maps: MapsConfig{
			PointFieldWidget: PointFieldWidgetConfig{
				Zoom:                  15,
				MapCenterLocationName: "bogota",
				PlaceAutocomplete: AutocompleteOptions{
					ComponentRestrictions: map[string]string{"country": "co"},
				},
				MarkerFitZoom: 12,
			},
		},
		Database: DatabaseConfig{
			Engine:     "postgis",
			AutoCommit: true,
		},
		PasswordValidators: []PasswordValidatorConfig{},
		Tracing: TracingConfig{
			Exporter:   TracingExporterNone,
			SampleRate: 1,
		},
	}
}
