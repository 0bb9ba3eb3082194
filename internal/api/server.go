// SPDX-License-Identifier: MIT

// Package api exposes the session over a local HTTP control surface with a
// websocket event stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/events"
	"github.com/ManuGH/myth2dsv/internal/health"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/session"
	"github.com/ManuGH/myth2dsv/internal/thumbcache"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Controller is the session surface the API drives.
type Controller interface {
	Catalog() *catalog.Snapshot
	Progress() encode.Progress
	Cache() *thumbcache.Cache
	Host() string
	Refresh(ctx context.Context, host string) error
	StartOrCancelEncode(ctx context.Context, filename string) (encode.Outcome, error)
	RequestShutdown(ctx context.Context, confirm session.ConfirmFunc) (bool, error)
}

// EventSource feeds the websocket stream.
type EventSource interface {
	Subscribe(buffer int) *events.Subscription
	LatestAll() map[events.Kind]events.Event
}

// Config configures the server.
type Config struct {
	Listen string
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int
	// ServiceName names trace spans; empty disables HTTP tracing.
	ServiceName string
	// DefaultHost supplies the backend for a refresh that names none and
	// has no current connection to reuse.
	DefaultHost func() string
	// OnShutdown runs after the session accepted a shutdown request.
	OnShutdown func()
	// Health backs /healthz and /readyz; nil serves a static liveness answer.
	Health *health.Manager
}

// Server is the control API.
type Server struct {
	cfg      Config
	ctl      Controller
	events   EventSource
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	closing   chan struct{}
	closeOnce sync.Once
}

// New builds a server; call ListenAndServe to start it.
func New(cfg Config, ctl Controller, src EventSource) *Server {
	s := &Server{
		cfg:     cfg,
		ctl:     ctl,
		events:  src,
		logger:  xglog.WithComponent("api"),
		closing: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(xglog.Middleware())

	if s.cfg.Health != nil {
		r.Get("/healthz", s.cfg.Health.ServeHealth)
		r.Get("/readyz", s.cfg.Health.ServeReady)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	r.Handle("/metrics", promhttp.Handler())
	// Websocket upgrades need the raw writer, so the stream sits outside
	// the tracing and metrics wrappers.
	r.Get("/api/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		if s.cfg.ServiceName != "" {
			r.Use(tracing(s.cfg.ServiceName))
		}
		r.Use(instrument)
		r.Use(rateLimit(s.cfg.RateLimit, time.Minute))

		r.Get("/api/status", s.handleStatus)
		r.Get("/api/recordings", s.handleListRecordings)
		r.Post("/api/refresh", s.handleRefresh)
		r.Post("/api/recordings/{filename}/encode", s.handleEncode)
		r.Get("/api/recordings/{filename}/thumbnail", s.handleThumbnail)
		r.Post("/api/shutdown", s.handleShutdown)
	})
	return r
}

// ListenAndServe serves until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str(xglog.FieldEvent, "api.listen").Str("addr", s.cfg.Listen).Msg("control API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends event streams and waits for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.httpSrv.Shutdown(ctx)
}
