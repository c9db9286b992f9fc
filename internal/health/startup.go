// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the server starts.
func PerformStartupChecks(ctx context.Context, s config.Settings) error {
	logger := log.WithComponent(config.LoggerBackend).With().Str("stage", "startup-check").Logger()
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkListenAddr(logger, s.Server.ListenAddr); err != nil {
		return err
	}
	if err := checkBaseDir(logger, s.Server.BaseDir); err != nil {
		return fmt.Errorf("base directory check failed: %w", err)
	}
	if err := ensureWritableDir(logger, s.Static.MediaRoot); err != nil {
		return fmt.Errorf("media root check failed: %w", err)
	}
	if s.Security.Production && s.Security.Debug {
		logger.Warn().Msg("debug is enabled in production")
	}
	if s.Security.Production && len(s.Security.AllowedHosts) == 1 && s.Security.AllowedHosts[0] == "*" {
		logger.Warn().Msg("allowed hosts accepts any host")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Debug().Str("addr", addr).Msg("listen address is valid")
	return nil
}

func checkBaseDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	logger.Debug().Str("path", path).Msg("base directory exists")
	return nil
}

func ensureWritableDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)
	logger.Debug().Str("path", path).Msg("directory is writable")
	return nil
}
