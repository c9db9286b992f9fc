// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package database opens the PostgreSQL connection pool.
package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnginePostGIS requires the postgis extension on the target database.
const EnginePostGIS = "postgis"

var ErrPostGISMissing = errors.New("postgis extension is not installed")

const (
	defaultMaxConns          = 10
	defaultHealthCheckPeriod = 30 * time.Second
	defaultConnectTimeout    = 5 * time.Second
)

// ConnString renders cfg as a postgres:// URL.
func ConnString(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	q.Set("application_name", "backend")
	q.Set("connect_timeout", strconv.Itoa(int(defaultConnectTimeout/time.Second)))
	u.RawQuery = q.Encode()
	return u.String()
}

// PoolConfig builds the pgxpool configuration for cfg.
func PoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pc.MaxConns = defaultMaxConns
	pc.HealthCheckPeriod = defaultHealthCheckPeriod
	return pc, nil
}

// DB wraps the pool together with the engine it was opened for.
type DB struct {
	Pool   *pgxpool.Pool
	engine string
}

// Open connects and pings the database. Statements run in autocommit mode
// unless wrapped in an explicit transaction.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	pc, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db := &DB{Pool: pool, engine: cfg.Engine}
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	clog := log.WithComponent(config.LoggerBackend)
	clog.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Str("engine", cfg.Engine).
		Msg("database connected")
	return db, nil
}

// Ping checks connectivity and, for the postgis engine, the extension.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if db.engine == EnginePostGIS {
		return CheckPostGIS(ctx, db.Pool)
	}
	return nil
}

// Close releases every connection.
func (db *DB) Close() {
	db.Pool.Close()
}

// CheckPostGIS fails unless postgis_version() is callable.
func CheckPostGIS(ctx context.Context, q Querier) error {
	var version string
	if err := q.QueryRow(ctx, "SELECT postgis_version()").Scan(&version); err != nil {
		return fmt.Errorf("%w: %v", ErrPostGISMissing, err)
	}
	return nil
}
