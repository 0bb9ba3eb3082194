// SPDX-License-Identifier: MIT

// Package validation runs pre-flight checks against the host environment.
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ManuGH/myth2dsv/internal/config"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/mythtv"
	"github.com/rs/zerolog"
)

// backendProbeTimeout bounds the optional backend reachability probe.
const backendProbeTimeout = 5 * time.Second

// ErrEncoderNotFound is reported when the encoder binary cannot be resolved.
var ErrEncoderNotFound = errors.New("encoder binary not found")

// PerformStartupChecks validates the environment before serving. Unusable
// thumbnail or output directories fail the check. A missing encoder or an
// unreachable backend is only logged: both are reported again per operation.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkWritableDir(logger, cfg.Thumbnails.Dir); err != nil {
		return fmt.Errorf("thumbnail directory check failed: %w", err)
	}
	if err := checkWritableDir(logger, cfg.Encoder.OutputDir); err != nil {
		return fmt.Errorf("output directory check failed: %w", err)
	}

	if err := CheckEncoder(cfg.Encoder); err != nil {
		logger.Warn().Err(err).Msg("encoder unavailable, encodes will fail until it is installed")
	} else {
		logger.Info().Str("binary", cfg.Encoder.Binary).Msg("encoder binary found")
	}

	if cfg.Backend.Host != "" {
		if err := checkBackend(ctx, cfg.Backend); err != nil {
			logger.Warn().Err(err).Str(log.FieldHost, cfg.Backend.Host).Msg("backend not reachable")
		} else {
			logger.Info().Str(log.FieldHost, cfg.Backend.Host).Msg("backend is reachable")
		}
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

// CheckEncoder resolves the configured encoder binary to an executable.
func CheckEncoder(cfg config.EncoderConfig) error {
	l := encode.ExecLauncher{Dir: cfg.Dir, Binary: cfg.Binary}
	if _, err := exec.LookPath(l.Path()); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEncoderNotFound, l.Path(), err)
	}
	return nil
}

// checkWritableDir creates path if needed and proves it is writable.
func checkWritableDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return errors.New("directory is not configured")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".myth2dsv_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %w)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}

func checkBackend(ctx context.Context, cfg config.BackendConfig) error {
	ctx, cancel := context.WithTimeout(ctx, backendProbeTimeout)
	defer cancel()

	conn, err := mythtv.Connect(ctx, cfg.Host, mythtv.Options{
		Port:    cfg.Port,
		Timeout: backendProbeTimeout,
	})
	if err != nil {
		return err
	}
	return conn.Close()
}
