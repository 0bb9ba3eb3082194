// SPDX-License-Identifier: MIT

// Package prefetch walks a catalog in the background and fills the
// thumbnail cache using a connection of its own.
package prefetch

import (
	"context"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/events"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/telemetry"
	"github.com/ManuGH/myth2dsv/internal/thumbcache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// DefaultHeight is the preview height requested from the backend.
const DefaultHeight = 64

// Source is the part of a backend connection the worker needs.
type Source interface {
	FetchThumbnail(ctx context.Context, rec catalog.Recording, height int) ([]byte, error)
	Close() error
}

// Dialer opens the worker's secondary connection.
type Dialer func(ctx context.Context) (Source, error)

// Config configures a Worker.
type Config struct {
	Dial      Dialer
	Cache     *thumbcache.Cache
	Publisher events.Publisher
	Height    int
	// FetchRate limits backend preview requests per second. Zero disables pacing.
	FetchRate float64
	Host      string
}

// Stats summarises one walk.
type Stats struct {
	Total     int
	Cached    int
	Fetched   int
	Failed    int
	Cancelled bool
}

// Worker fills the thumbnail cache for a catalog snapshot.
type Worker struct {
	dial    Dialer
	cache   *thumbcache.Cache
	pub     events.Publisher
	height  int
	limiter *rate.Limiter
	host    string
}

// New returns a Worker. Dial and Cache are required.
func New(cfg Config) *Worker {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.FetchRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.FetchRate), 1)
	}
	return &Worker{
		dial:    cfg.Dial,
		cache:   cfg.Cache,
		pub:     cfg.Publisher,
		height:  cfg.Height,
		limiter: limiter,
		host:    cfg.Host,
	}
}

// Run walks recs in order. Cancelling ctx stops the walk at the next
// recording boundary; a fetch already underway is allowed to complete.
// Whatever happens, the secondary connection is closed, "Idle" is published
// and catalog-changed is published exactly once.
func (w *Worker) Run(ctx context.Context, recs []catalog.Recording) Stats {
	ctx, span := telemetry.Tracer("myth2dsv/prefetch").Start(ctx, "prefetch.run")
	defer span.End()

	logger := xglog.WithComponentFromContext(ctx, "prefetch")
	stats := Stats{Total: len(recs)}
	start := time.Now()

	defer func() {
		span.SetAttributes(telemetry.PrefetchAttributes(w.host, stats.Total, stats.Fetched, stats.Failed)...)
		span.SetAttributes(attribute.Bool("prefetch.cancelled", stats.Cancelled))
		w.pub.Publish(events.Status("Idle"))
		w.pub.Publish(events.CatalogChanged())
		logger.Info().
			Str(xglog.FieldEvent, "prefetch.done").
			Int(xglog.FieldTotal, stats.Total).
			Int("cached", stats.Cached).
			Int("fetched", stats.Fetched).
			Int("failed", stats.Failed).
			Bool("cancelled", stats.Cancelled).
			Dur("elapsed", time.Since(start)).
			Msg("thumbnail prefetch finished")
	}()

	// Network calls run to completion even after cancellation.
	netCtx := context.WithoutCancel(ctx)

	src, err := w.dial(netCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		logger.Error().Err(err).Str(xglog.FieldEvent, "prefetch.dial_failed").Msg("could not open thumbnail connection")
		return stats
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Debug().Err(err).Msg("close thumbnail connection")
		}
	}()

	for i, rec := range recs {
		if ctx.Err() != nil {
			stats.Cancelled = true
			return stats
		}
		w.pub.Publish(events.ThumbnailProgress(i+1, len(recs)))

		if w.cache.Has(rec.Filename) {
			stats.Cached++
			continue
		}
		if err := w.limiter.Wait(ctx); err != nil {
			stats.Cancelled = true
			return stats
		}

		res, err := w.cache.FetchAndStore(netCtx, rec.Filename, func(fctx context.Context) ([]byte, error) {
			return src.FetchThumbnail(fctx, rec, w.height)
		})
		switch {
		case err != nil:
			stats.Failed++
			logger.Warn().Err(err).
				Str(xglog.FieldEvent, "prefetch.fetch_failed").
				Str(xglog.FieldRecording, rec.Filename).
				Int(xglog.FieldIndex, i+1).
				Int(xglog.FieldTotal, len(recs)).
				Msg("thumbnail fetch failed")
		case res == thumbcache.ResultStored:
			stats.Fetched++
		default:
			stats.Cached++
		}
	}
	return stats
}
