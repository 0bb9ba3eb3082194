// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/myth2dsv/internal/api"
	"github.com/ManuGH/myth2dsv/internal/config"
	"github.com/ManuGH/myth2dsv/internal/events"
	"github.com/ManuGH/myth2dsv/internal/health"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/session"
	"github.com/ManuGH/myth2dsv/internal/telemetry"
	"github.com/ManuGH/myth2dsv/internal/validation"
	"github.com/ManuGH/myth2dsv/internal/version"
	"github.com/spf13/cobra"
)

const httpShutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API with background preview prefetching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c.cfg, c.loader)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, loader *config.Loader) error {
	logger := xglog.WithComponent("daemon")
	logger.Info().
		Str(xglog.FieldEvent, "daemon.start").
		Str("version", version.Version).
		Str(xglog.FieldHost, cfg.Backend.Host).
		Msg("starting myth2dsv")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: version.Version,
		Exporter:       cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	if err := validation.PerformStartupChecks(ctx, cfg); err != nil {
		return err
	}

	holder := config.NewHolder(cfg, loader)
	reloads := make(chan config.Config, 1)
	holder.RegisterListener(reloads)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config hot reload unavailable")
	}
	defer holder.Stop()

	bus := events.NewBus()
	sess := newSession(cfg, bus, sessionOptions{withCache: true})

	sessionDone := make(chan struct{})
	var doneOnce sync.Once
	markDone := func() { doneOnce.Do(func() { close(sessionDone) }) }

	serviceName := ""
	if cfg.Telemetry.Enabled {
		serviceName = cfg.Log.Service
	}
	probes := health.NewManager(version.Version)
	probes.RegisterChecker(health.BackendChecker(sess.Host))
	probes.RegisterChecker(health.EncoderChecker(func() error { return validation.CheckEncoder(holder.Get().Encoder) }))
	probes.RegisterChecker(health.DirChecker("thumbnails", cfg.Thumbnails.Dir))
	probes.RegisterChecker(health.DirChecker("output", cfg.Encoder.OutputDir))

	srv := api.New(api.Config{
		Listen:      cfg.API.Listen,
		RateLimit:   cfg.API.RateLimit,
		ServiceName: serviceName,
		DefaultHost: func() string { return holder.Get().Backend.Host },
		OnShutdown:  markDone,
		Health:      probes,
	}, sess, bus)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	if cfg.Backend.Host != "" {
		go refresh(ctx, sess, cfg.Backend.Host)
	} else {
		bus.Publish(events.Status("Idle"))
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(xglog.FieldEvent, "daemon.signal").Msg("shutdown signal received")
			break loop
		case <-sessionDone:
			break loop
		case err := <-serveErr:
			runErr = err
			break loop
		case next := <-reloads:
			applyReload(ctx, sess, cfg, next)
			cfg = next
		}
	}

	// A signal is an unconditional quit: a running encode is cancelled.
	if _, err := sess.RequestShutdown(context.Background(), func(context.Context) bool { return true }); err != nil {
		logger.Error().Err(err).Msg("session shutdown failed")
	}
	wctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := sess.WaitPrefetch(wctx); err != nil {
		logger.Warn().Err(err).Msg("prefetch did not stop in time")
	}
	if err := srv.Shutdown(wctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("control API shutdown incomplete")
	}

	logger.Info().Str(xglog.FieldEvent, "daemon.stop").Msg("myth2dsv stopped")
	return runErr
}

// refresh logs failures; the session already published them as status events.
func refresh(ctx context.Context, sess *session.Session, host string) {
	if err := sess.Refresh(ctx, host); err != nil && !errors.Is(err, session.ErrShutdown) {
		logger := xglog.WithComponent("daemon")
		logger.Warn().Err(err).Str(xglog.FieldHost, host).Msg("initial catalog load failed")
	}
}

// applyReload picks up the settings that can change without a restart.
func applyReload(ctx context.Context, sess *session.Session, old, next config.Config) {
	if old.Log.Level != next.Log.Level {
		xglog.Configure(xglog.Config{
			Level:   next.Log.Level,
			Output:  os.Stderr,
			Service: next.Log.Service,
			Version: version.Version,
		})
	}
	if next.Backend.Host != "" && next.Backend.Host != old.Backend.Host {
		go refresh(ctx, sess, next.Backend.Host)
	}
}
