// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command backend serves the HTTP API and runs background workers from the
// settings in the environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		case "worker":
			os.Exit(runWorkerCLI(os.Args[2:]))
		case "serve":
			os.Exit(runServeCLI(os.Args[2:]))
		}
	}
	os.Exit(runServeCLI(os.Args[1:]))
}

// commonFlags are accepted by every subcommand that loads settings.
type commonFlags struct {
	baseDir string
	envFile string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.baseDir, "base-dir", "", "project base directory (default: working directory)")
	fs.StringVar(&c.envFile, "env-file", "", "env file to read instead of <base-dir>/.env")
}

// lookupEnv is the process environment; tests substitute a map.
var lookupEnv config.LookupFunc = os.LookupEnv

func (c commonFlags) loader() *config.Loader {
	return config.NewLoader(c.baseDir, config.WithEnvFile(c.envFile), config.WithLookup(lookupEnv))
}

// bootstrapLogging logs at INFO until the configured levels are known.
func bootstrapLogging(out io.Writer) {
	_ = log.Configure(log.Config{
		Level:   "INFO",
		Loggers: map[string]string{config.LoggerCore: "INFO", config.LoggerBackend: "INFO", "config": "INFO"},
		Output:  out,
		Service: "backend",
		Version: version.Version,
	})
}

// loadSettings loads settings and switches logging to the configured levels.
func loadSettings(c commonFlags) (config.Settings, *config.Loader, error) {
	bootstrapLogging(os.Stdout)
	l := c.loader()
	s, err := l.Load()
	if err != nil {
		return config.Settings{}, l, err
	}
	if err := log.Configure(s.Logging.LogConfig(os.Stdout, version.Version)); err != nil {
		return config.Settings{}, l, fmt.Errorf("configure logging: %w", err)
	}
	clog := log.WithComponent(config.LoggerCore)
	clog.Info().
		Str(log.FieldEvent, "config.loaded").
		Str(log.FieldProfile, string(s.Profile)).
		Str("env_file", l.EnvFile()).
		Bool("env_file_loaded", l.EnvFileLoaded()).
		Str("fingerprint", config.ShortFingerprint(s)).
		Msg("configuration loaded")
	return s, l, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServeCLI(args []string) int {
	fs := flag.NewFlagSet("backend serve", flag.ContinueOnError)
	var c commonFlags
	c.register(fs)
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	s, l, err := loadSettings(c)
	logger := log.WithComponent(config.LoggerCore)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "config.load_failed").Msg("failed to load configuration")
		return 1
	}

	ctx, stop := signalContext()
	defer stop()

	holder := config.NewHolder(s, l)
	if err := watchSettings(ctx, holder, l.EnvFileLoaded()); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Msg("config hot reload disabled")
	}
	if err := serve(ctx, s); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "server.failed").Msg("server failed")
		return 1
	}
	logger.Info().Msg("server exiting")
	return 0
}

func runWorkerCLI(args []string) int {
	fs := flag.NewFlagSet("backend worker", flag.ContinueOnError)
	var c commonFlags
	c.register(fs)
	queue := fs.String("queue", "", "queue to consume (default: celery)")
	concurrency := fs.Int("concurrency", 4, "parallel task handlers")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, _, err := loadSettings(c)
	logger := log.WithComponent(config.LoggerBackend)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "config.load_failed").Msg("failed to load configuration")
		return 1
	}

	ctx, stop := signalContext()
	defer stop()
	if err := work(ctx, s, *queue, *concurrency); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "worker.failed").Msg("worker failed")
		return 1
	}
	return 0
}

// watchSettings reloads settings on SIGHUP and, when an env file was read, on
// every write to it. Reloads re-apply logging levels; other changes are
// logged and take effect on restart.
func watchSettings(ctx context.Context, h *config.Holder, watchFile bool) error {
	updates := make(chan config.Settings, 1)
	h.Subscribe(updates)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-updates:
				applyLogging(s)
			}
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				_, _ = h.Reload()
			}
		}
	}()

	if !watchFile {
		return nil
	}
	return h.Watch(ctx)
}

func applyLogging(s config.Settings) {
	logger := log.WithComponent(config.LoggerCore)
	if err := log.Configure(s.Logging.LogConfig(os.Stdout, version.Version)); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "config.logging_rejected").Msg("keeping previous logging levels")
		return
	}
	logger.Info().
		Str(log.FieldEvent, "config.logging_applied").
		Msg("logging levels applied; other setting changes take effect on restart")
}
