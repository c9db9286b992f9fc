// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ManuGH/backend/internal/api"
	"github.com/ManuGH/backend/internal/auth"
	"github.com/ManuGH/backend/internal/broker"
	"github.com/ManuGH/backend/internal/cache"
	"github.com/ManuGH/backend/internal/channels"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/database"
	"github.com/ManuGH/backend/internal/health"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/passwords"
	"github.com/ManuGH/backend/internal/sms"
	"github.com/ManuGH/backend/internal/storage"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/ManuGH/backend/internal/verification"
	"github.com/ManuGH/backend/internal/version"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// closers runs cleanup functions in reverse registration order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func serve(ctx context.Context, s config.Settings) error {
	logger := log.WithComponent(config.LoggerCore)

	if err := health.PerformStartupChecks(ctx, s); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	var cleanup closers
	defer func() { cleanup.run() }()

	tp, err := telemetry.NewProvider(ctx, telemetry.ConfigFrom(s, version.Version))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	cleanup.add(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	})

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewDirChecker("media", s.Static.MediaRoot))

	rdb, err := cache.NewRedisClient(s.TaskQueue.BrokerURL)
	if err != nil {
		return err
	}
	cleanup.add(func() { _ = rdb.Close() })
	hm.RegisterChecker(health.NewPingChecker("redis", func(ctx context.Context) error { return cache.Ping(ctx, rdb) }))

	b, err := broker.New(rdb, s.TaskQueue)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, s.Database)
	if err != nil {
		return err
	}
	cleanup.add(db.Close)
	hm.RegisterChecker(health.NewPingChecker("database", db.Ping))

	deps, err := buildAPIDeps(ctx, s, rdb, b, hm, &cleanup)
	if err != nil {
		return err
	}
	handler, err := api.New(s, deps).Handler()
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              s.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", srv.Addr).
		Str(log.FieldProfile, string(s.Profile)).
		Str("broker", config.MaskURL(s.TaskQueue.BrokerURL)).
		Msg("starting backend")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info().Str(log.FieldEvent, "shutdown").Msg("shutting down HTTP server")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// buildAPIDeps wires the request handlers' collaborators.
func buildAPIDeps(ctx context.Context, s config.Settings, rdb redis.UniversalClient, b *broker.Broker, hm *health.Manager, cleanup *closers) (api.Deps, error) {
	tokens, err := auth.NewTokens(s.Token)
	if err != nil {
		return api.Deps{}, err
	}
	policy, err := passwords.NewPolicy(s.PasswordValidators)
	if err != nil {
		return api.Deps{}, err
	}

	codes := cache.NewRedisCache(rdb, "backend", log.WithComponent(config.LoggerBackend))
	verifier, err := verification.New(s, codes, sms.NewQueuedSender(b, broker.DefaultQueue))
	if err != nil {
		return api.Deps{}, err
	}

	deps := api.Deps{
		Verifier:   verifier,
		Tokens:     tokens,
		TokenStore: auth.NewRedisStore(rdb, ""),
		Passwords:  policy,
		Health:     hm,
	}

	if s.AppInstalled(config.AppChannels) {
		layers, err := channels.Open(s, channels.DefaultClientFactory)
		if err != nil {
			return api.Deps{}, err
		}
		cleanup.add(func() { _ = layers.Close() })
		if layer, ok := layers.Default(); ok {
			deps.Groups = layer
			hm.RegisterChecker(health.NewOptionalPingChecker("channels", layer.Ping))
		}
	}

	if s.Storage.Bucket != "" {
		store, err := storage.New(ctx, s.Storage)
		if err != nil {
			return api.Deps{}, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return api.Deps{}, err
		}
		deps.Uploader = store
	} else {
		clog := log.WithComponent(config.LoggerCore)
		clog.Warn().
			Str(log.FieldEvent, "storage.disabled").
			Msg("no storage bucket configured, uploads are disabled")
	}
	return deps, nil
}
