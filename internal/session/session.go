// SPDX-License-Identifier: MIT

// Package session coordinates the primary backend connection, the recording
// catalog, thumbnail prefetching and the encode pipeline.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/events"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/metrics"
	"github.com/ManuGH/myth2dsv/internal/prefetch"
	"github.com/ManuGH/myth2dsv/internal/thumbcache"
	"github.com/rs/zerolog"
)

// DefaultShutdownGrace bounds how long shutdown waits for an encode to stop.
const DefaultShutdownGrace = 2 * time.Second

var (
	ErrNotConnected     = errors.New("session: not connected to a backend")
	ErrUnknownRecording = errors.New("session: unknown recording")
	ErrShutdown         = errors.New("session: shut down")
)

// ConfirmFunc asks the user whether a running encode may be terminated.
type ConfirmFunc func(ctx context.Context) bool

// Config configures a Session.
type Config struct {
	Dial      Dialer
	Launcher  encode.Launcher
	Cache     *thumbcache.Cache
	Publisher events.Publisher

	OutputDir   string
	Extension   string
	ThumbHeight int
	FetchRate   float64

	ShutdownGrace time.Duration
	// ReapOrphans signals the encoder's process group when shutdown gives up
	// waiting for it.
	ReapOrphans bool
	// ReapGrace is how long each reaping signal is given to take effect.
	ReapGrace time.Duration
}

// Session is the coordinator. All methods are safe for concurrent use.
type Session struct {
	cfg      Config
	pub      events.Publisher
	catalog  catalog.Catalog
	pipeline *encode.Pipeline
	logger   zerolog.Logger

	// life is cancelled on shutdown and bounds refreshes and prefetching.
	life       context.Context
	lifeCancel context.CancelFunc

	mu       sync.Mutex
	primary  Backend
	shutdown bool
	// closing counts shutdown requests waiting on a running encode; no new
	// encode may start while it is non-zero.
	closing        int
	refreshSeq     uint64
	appliedSeq     uint64
	prefetchCancel context.CancelFunc
	prefetchWG     sync.WaitGroup

	// retired connections are closed once the encode that uses them ends.
	rmu     sync.Mutex
	retired []Backend
}

// New returns a disconnected session.
func New(cfg Config) *Session {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.ReapGrace <= 0 {
		cfg.ReapGrace = 500 * time.Millisecond
	}
	s := &Session{
		cfg:    cfg,
		pub:    cfg.Publisher,
		logger: xglog.WithComponent("session"),
	}
	s.life, s.lifeCancel = context.WithCancel(context.Background())
	s.pipeline = encode.New(encode.Config{
		Launcher:  cfg.Launcher,
		OutputDir: cfg.OutputDir,
		Extension: cfg.Extension,
		Publisher: cfg.Publisher,
		OnIdle:    func(encode.Summary) { s.closeRetiredIfIdle() },
	})
	return s
}

// Catalog returns the current recording snapshot; nil before the first refresh.
func (s *Session) Catalog() *catalog.Snapshot {
	return s.catalog.Current()
}

// Progress returns the encode pipeline's progress snapshot.
func (s *Session) Progress() encode.Progress {
	return s.pipeline.Snapshot()
}

// WaitEncode blocks until no encode is running or ctx is done.
func (s *Session) WaitEncode(ctx context.Context) error {
	return s.pipeline.Wait(ctx)
}

// LastEncode returns the summary of the most recently ended encode.
func (s *Session) LastEncode() (encode.Summary, bool) {
	return s.pipeline.Last()
}

// Cache returns the thumbnail cache, which may be nil.
func (s *Session) Cache() *thumbcache.Cache {
	return s.cfg.Cache
}

// Host returns the host of the primary connection, or "" when disconnected.
func (s *Session) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary == nil {
		return ""
	}
	return s.primary.Host()
}

// Refresh connects to host, lists its recordings, replaces the catalog and
// restarts thumbnail prefetching. On failure the previous connection and
// catalog stay in place. The backend round trips run without the session
// lock and are abandoned when the session shuts down.
func (s *Session) Refresh(ctx context.Context, host string) error {
	s.mu.Lock()
	if s.shutdown || s.closing > 0 {
		s.mu.Unlock()
		return ErrShutdown
	}
	s.refreshSeq++
	seq := s.refreshSeq
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	s.pub.Publish(events.CatalogLoading(host))

	conn, err := s.cfg.Dial(ctx, host)
	if err != nil {
		if s.life.Err() != nil {
			return fmt.Errorf("%w: %w", ErrShutdown, err)
		}
		s.pub.Publish(events.Status("Connection failed: " + err.Error()))
		s.logger.Error().Err(err).Str(xglog.FieldEvent, "session.connect_failed").Str(xglog.FieldHost, host).Msg("could not connect to backend")
		return err
	}
	recs, err := conn.ListRecordings(ctx)
	if err != nil {
		_ = conn.Close()
		if s.life.Err() != nil {
			return fmt.Errorf("%w: %w", ErrShutdown, err)
		}
		s.pub.Publish(events.Status("Listing failed: " + err.Error()))
		s.logger.Error().Err(err).Str(xglog.FieldEvent, "session.list_failed").Str(xglog.FieldHost, host).Msg("could not list recordings")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown || s.closing > 0 {
		_ = conn.Close()
		return ErrShutdown
	}
	if seq < s.appliedSeq {
		// A later refresh already replaced the catalog.
		_ = conn.Close()
		return nil
	}
	s.appliedSeq = seq

	s.retire(s.primary)
	s.primary = conn

	snap := catalog.NewSnapshot(conn.Host(), recs, time.Now())
	s.catalog.Replace(snap)
	metrics.CatalogRecordings.Set(float64(snap.Len()))
	s.logger.Info().
		Str(xglog.FieldEvent, "session.refreshed").
		Str(xglog.FieldHost, conn.Host()).
		Int(xglog.FieldTotal, snap.Len()).
		Msg("recording catalog loaded")

	s.startPrefetchLocked(host, snap.Recordings())
	return nil
}

// retire closes old now, or after the running encode if there is one.
func (s *Session) retire(old Backend) {
	if old == nil {
		return
	}
	s.rmu.Lock()
	s.retired = append(s.retired, old)
	s.rmu.Unlock()
	s.closeRetiredIfIdle()
}

func (s *Session) closeRetiredIfIdle() {
	s.rmu.Lock()
	if s.pipeline.Active() {
		s.rmu.Unlock()
		return
	}
	conns := s.retired
	s.retired = nil
	s.rmu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close retired connection")
		}
	}
}

// startPrefetchLocked cancels any running walk and starts a new one. The
// previous walk stops at its next recording boundary.
func (s *Session) startPrefetchLocked(host string, recs []catalog.Recording) {
	if s.prefetchCancel != nil {
		s.prefetchCancel()
		s.prefetchCancel = nil
	}
	if s.cfg.Cache == nil {
		s.pub.Publish(events.Status("Idle"))
		s.pub.Publish(events.CatalogChanged())
		return
	}

	w := prefetch.New(prefetch.Config{
		Dial: func(ctx context.Context) (prefetch.Source, error) {
			b, err := s.cfg.Dial(ctx, host)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		Cache:     s.cfg.Cache,
		Publisher: s.pub,
		Height:    s.cfg.ThumbHeight,
		FetchRate: s.cfg.FetchRate,
		Host:      host,
	})
	ctx, cancel := context.WithCancel(s.life)
	s.prefetchCancel = cancel
	s.prefetchWG.Add(1)
	go func() {
		defer s.prefetchWG.Done()
		defer cancel()
		w.Run(ctx, recs)
	}()
}

// StartOrCancelEncode starts encoding filename, or cancels the running
// encode if there is one.
func (s *Session) StartOrCancelEncode(ctx context.Context, filename string) (encode.Outcome, error) {
	if s.pipeline.RequestCancel() {
		s.logger.Info().Str(xglog.FieldEvent, "session.encode_toggle").Msg("encode cancellation requested")
		return encode.OutcomeCancelRequested, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown || s.closing > 0 {
		return encode.OutcomeStarted, ErrShutdown
	}
	if s.primary == nil {
		return encode.OutcomeStarted, ErrNotConnected
	}
	rec, ok := s.catalog.Current().Lookup(filename)
	if !ok {
		return encode.OutcomeStarted, fmt.Errorf("%w: %s", ErrUnknownRecording, filename)
	}

	primary := s.primary
	src := encode.StreamerFunc(func(ctx context.Context, rec catalog.Recording) (encode.ChunkStream, error) {
		return primary.StreamRecording(ctx, rec)
	})
	return s.pipeline.Start(ctx, rec, src)
}

// CancelEncode asks the running encode to stop and never starts one. It
// reports whether a job was running.
func (s *Session) CancelEncode() bool {
	if !s.pipeline.RequestCancel() {
		return false
	}
	s.logger.Info().Str(xglog.FieldEvent, "session.encode_cancel").Msg("encode cancellation requested")
	return true
}

// RequestShutdown ends the session. With an encode running, confirm decides
// whether to terminate it; a refusal leaves everything running and returns
// false. Otherwise the encode is cancelled and awaited for at most the
// shutdown grace, the primary connection is closed and prefetching stops.
func (s *Session) RequestShutdown(ctx context.Context, confirm ConfirmFunc) (bool, error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return true, nil
	}
	if !s.pipeline.Active() {
		s.closeLocked()
		s.mu.Unlock()
		return true, nil
	}
	s.closing++
	s.mu.Unlock()

	if confirm != nil && !confirm(ctx) {
		s.mu.Lock()
		s.closing--
		s.mu.Unlock()
		s.logger.Info().Str(xglog.FieldEvent, "session.shutdown_refused").Msg("shutdown refused while encoding")
		return false, nil
	}
	s.pipeline.RequestCancel()

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	err := s.pipeline.Wait(waitCtx)
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).
			Str(xglog.FieldEvent, "session.encoder_orphaned").
			Dur("grace", s.cfg.ShutdownGrace).
			Msg("encoder did not stop in time and may be left running")
		if s.cfg.ReapOrphans {
			if err := s.pipeline.KillEncoder(s.cfg.ReapGrace); err != nil {
				s.logger.Error().Err(err).Str(xglog.FieldEvent, "session.reap_failed").Msg("could not terminate encoder")
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing--
	if !s.shutdown {
		s.closeLocked()
	}
	return true, nil
}

// closeLocked must be called with mu held.
func (s *Session) closeLocked() {
	s.shutdown = true
	s.lifeCancel()
	if s.prefetchCancel != nil {
		s.prefetchCancel()
		s.prefetchCancel = nil
	}
	if s.primary != nil {
		if err := s.primary.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close primary connection")
		}
		s.primary = nil
	}
	s.closeRetiredIfIdle()
	s.logger.Info().Str(xglog.FieldEvent, "session.shutdown").Msg("session shut down")
}

// WaitPrefetch blocks until background prefetching has stopped or ctx is done.
func (s *Session) WaitPrefetch(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.prefetchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
