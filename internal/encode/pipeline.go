// SPDX-License-Identifier: MIT

// Package encode pumps a recording's bytes into an external encoder process
// and reports progress. At most one job runs at a time; starting while a job
// is active cancels it instead.
package encode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/events"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/metrics"
	"github.com/ManuGH/myth2dsv/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultExtension is the output file extension of the dsvideo encoder.
const DefaultExtension = "dsv"

// ChunkStream yields a recording's bytes in order.
type ChunkStream interface {
	// Next returns the next chunk or io.EOF. The slice is only valid until
	// the following call.
	Next() ([]byte, error)
	Close() error
}

// Streamer opens recording streams, normally on the session's primary connection.
type Streamer interface {
	StreamRecording(ctx context.Context, rec catalog.Recording) (ChunkStream, error)
}

// StreamerFunc adapts a function to Streamer.
type StreamerFunc func(ctx context.Context, rec catalog.Recording) (ChunkStream, error)

// StreamRecording calls f.
func (f StreamerFunc) StreamRecording(ctx context.Context, rec catalog.Recording) (ChunkStream, error) {
	return f(ctx, rec)
}

// Config configures a Pipeline.
type Config struct {
	Launcher  Launcher
	OutputDir string
	Extension string
	Publisher events.Publisher
	// OnIdle runs after a job has fully ended and the pipeline is idle again.
	OnIdle func(Summary)
}

// Progress is a point-in-time view of the pipeline.
type Progress struct {
	JobID      string    `json:"job_id,omitempty"`
	State      State     `json:"state"`
	Filename   string    `json:"filename,omitempty"`
	Output     string    `json:"output,omitempty"`
	Bytes      int64     `json:"bytes"`
	Total      int64     `json:"total"`
	Percentage float64   `json:"percentage"`
	Cancelling bool      `json:"cancelling"`
	StartedAt  time.Time `json:"started_at,omitzero"`
}

// Summary describes a job that has ended.
type Summary struct {
	JobID     string
	Recording catalog.Recording
	Output    string
	Result    Result
	Bytes     int64
	Err       error
	Elapsed   time.Duration
}

type job struct {
	id      string
	rec     catalog.Recording
	output  string
	started time.Time
	proc    Process

	cancel atomic.Bool
	bytes  atomic.Int64
}

// percentage never exceeds 100 and is only defined for non-empty recordings.
func (j *job) percentage() float64 {
	pct := float64(j.bytes.Load()) * 100 / float64(j.rec.Size)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Pipeline runs encode jobs one at a time.
type Pipeline struct {
	launcher  Launcher
	outputDir string
	ext       string
	pub       events.Publisher
	onIdle    func(Summary)
	logger    zerolog.Logger

	mu    sync.Mutex
	state State
	job   *job
	idle  chan struct{} // closed whenever no job is active
	last  *Summary
}

// New returns an idle pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultExtension
	}
	idle := make(chan struct{})
	close(idle)
	return &Pipeline{
		launcher:  cfg.Launcher,
		outputDir: cfg.OutputDir,
		ext:       cfg.Extension,
		pub:       cfg.Publisher,
		onIdle:    cfg.OnIdle,
		logger:    xglog.WithComponent("encode"),
		idle:      idle,
	}
}

// OutputPath returns where rec would be written.
func (p *Pipeline) OutputPath(rec catalog.Recording) string {
	return filepath.Join(p.outputDir, BaseName(rec.Title, rec.Subtitle)+"."+p.ext)
}

// Start launches an encode of rec, reading its bytes from src. If a job is
// already active it is asked to stop and OutcomeCancelRequested is returned.
// Streaming runs on its own goroutine; Start returns once the encoder is
// running. ctx bounds only the launch.
func (p *Pipeline) Start(ctx context.Context, rec catalog.Recording, src Streamer) (Outcome, error) {
	p.mu.Lock()
	if p.job != nil {
		active := p.job
		p.mu.Unlock()
		active.cancel.Store(true)
		p.logger.Info().
			Str(xglog.FieldEvent, "encode.cancel_requested").
			Str(xglog.FieldJobID, active.id).
			Str(xglog.FieldRecording, active.rec.Filename).
			Msg("encode cancellation requested")
		return OutcomeCancelRequested, nil
	}
	if rec.Size <= 0 {
		p.mu.Unlock()
		p.pub.Publish(events.Status("Encode failed: recording is empty"))
		return OutcomeStarted, fmt.Errorf("%w: %s", ErrEmptyRecording, rec.Filename)
	}

	j := &job{
		id:      uuid.NewString(),
		rec:     rec,
		output:  p.OutputPath(rec),
		started: time.Now(),
	}
	p.job = j
	p.idle = make(chan struct{})
	p.setStateLocked(StateStarting, j)
	p.mu.Unlock()
	p.pub.Publish(events.Status("Initialising..."))

	jobCtx := xglog.ContextWithJobID(context.WithoutCancel(ctx), j.id)
	logger := xglog.WithComponentFromContext(jobCtx, "encode")
	jobCtx, span := telemetry.Tracer("myth2dsv/encode").Start(jobCtx, "encode.job",
		trace.WithAttributes(telemetry.RecordingAttributes(rec.Filename, rec.Title, rec.Size)...),
		trace.WithAttributes(telemetry.EncodeAttributes(j.id, j.output)...),
	)

	proc, err := p.launcher.Launch(ctx, j.output)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSubprocessLaunch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "launch failed")
		span.End()
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "encode.launch_failed").
			Str(xglog.FieldOutput, j.output).
			Msg("could not start encoder")
		metrics.EncodeJobs.WithLabelValues("launch_failed").Inc()
		p.pub.Publish(events.Status("Encode failed: " + err.Error()))
		p.finish(Summary{JobID: j.id, Recording: rec, Output: j.output, Result: ResultFailed, Err: err})
		return OutcomeStarted, err
	}

	p.mu.Lock()
	j.proc = proc
	p.setStateLocked(StateStreaming, j)
	p.mu.Unlock()

	metrics.EncodeActive.Set(1)
	logger.Info().
		Str(xglog.FieldEvent, "encode.started").
		Str(xglog.FieldRecording, rec.Filename).
		Str(xglog.FieldOutput, j.output).
		Int(xglog.FieldPID, proc.PID()).
		Int64(xglog.FieldTotalBytes, rec.Size).
		Msg("encode started")
	p.pub.Publish(events.EncodeProgress(j.id, 0, 0, false))

	go p.run(jobCtx, span, j, src)
	return OutcomeStarted, nil
}

// run owns the job from Streaming to Idle.
func (p *Pipeline) run(ctx context.Context, span trace.Span, j *job, src Streamer) {
	defer span.End()
	logger := xglog.WithComponentFromContext(ctx, "encode")

	streamErr := p.pump(ctx, j, src)

	p.mu.Lock()
	p.setStateLocked(StateFinishing, j)
	p.mu.Unlock()

	stdin := j.proc.Stdin()
	if err := stdin.Close(); err != nil {
		logger.Debug().Err(err).Msg("close encoder stdin")
	}
	waitErr := j.proc.Wait()

	sum := Summary{
		JobID:     j.id,
		Recording: j.rec,
		Output:    j.output,
		Bytes:     j.bytes.Load(),
		Elapsed:   time.Since(j.started),
	}
	switch {
	case j.cancel.Load():
		sum.Result = ResultCancelled
		p.pub.Publish(events.Status("Encode cancelled"))
	case streamErr != nil:
		sum.Result, sum.Err = ResultFailed, streamErr
		p.pub.Publish(events.Status("Encode failed: " + streamErr.Error()))
	case waitErr != nil:
		sum.Result, sum.Err = ResultFailed, fmt.Errorf("%w: %w", ErrEncoderExit, waitErr)
		p.pub.Publish(events.Status("Encode failed: " + sum.Err.Error()))
	default:
		sum.Result = ResultFinished
		p.pub.Publish(events.EncodeProgress(j.id, 100, sum.Bytes, true))
		p.pub.Publish(events.Status("Encode finished!"))
	}
	if sum.Result != ResultFinished {
		p.pub.Publish(events.EncodeProgress(j.id, 0, 0, false))
	}

	span.SetAttributes(telemetry.EncodeResultAttributes(string(sum.Result), sum.Bytes)...)
	if sum.Err != nil {
		span.RecordError(sum.Err)
		span.SetStatus(codes.Error, string(sum.Result))
	}
	metrics.EncodeJobs.WithLabelValues(string(sum.Result)).Inc()
	metrics.EncodeDuration.WithLabelValues(string(sum.Result)).Observe(sum.Elapsed.Seconds())
	metrics.EncodeActive.Set(0)

	ev := logger.Info()
	if sum.Err != nil {
		ev = logger.Error().Err(sum.Err)
	}
	ev.Str(xglog.FieldEvent, "encode.done").
		Str("result", string(sum.Result)).
		Str(xglog.FieldRecording, j.rec.Filename).
		Int64(xglog.FieldBytes, sum.Bytes).
		Int64(xglog.FieldTotalBytes, j.rec.Size).
		Dur("elapsed", sum.Elapsed).
		Msg("encode ended")

	p.finish(sum)
}

// pump copies chunks into the encoder until the stream ends, fails, or the
// job is cancelled. The cancel token is checked after every chunk.
func (p *Pipeline) pump(ctx context.Context, j *job, src Streamer) error {
	if j.cancel.Load() {
		return nil
	}
	stream, err := src.StreamRecording(ctx, j.rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStreamIO, err)
	}
	defer func() { _ = stream.Close() }()

	stdin := j.proc.Stdin()
	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStreamIO, err)
		}
		if _, err := stdin.Write(chunk); err != nil {
			return fmt.Errorf("%w: write to encoder: %w", ErrStreamIO, err)
		}
		n := j.bytes.Add(int64(len(chunk)))
		metrics.EncodeBytes.Add(float64(len(chunk)))
		p.pub.Publish(events.EncodeProgress(j.id, j.percentage(), n, false))

		if j.cancel.Load() {
			return nil
		}
	}
}

func (p *Pipeline) finish(sum Summary) {
	p.mu.Lock()
	p.job = nil
	p.last = &sum
	p.setStateLocked(StateIdle, nil)
	close(p.idle)
	p.mu.Unlock()

	if p.onIdle != nil {
		p.onIdle(sum)
	}
}

// setStateLocked must be called with mu held.
func (p *Pipeline) setStateLocked(next State, j *job) {
	if p.state == next {
		return
	}
	ev := p.logger.Debug().
		Str(xglog.FieldEvent, "encode.state").
		Str(xglog.FieldOldState, p.state.String()).
		Str(xglog.FieldNewState, next.String())
	if j != nil {
		ev = ev.Str(xglog.FieldJobID, j.id)
	}
	ev.Msg("encode state changed")
	p.state = next
}

// RequestCancel asks the active job to stop after its current chunk. It
// reports whether a job was active.
func (p *Pipeline) RequestCancel() bool {
	p.mu.Lock()
	j := p.job
	p.mu.Unlock()
	if j == nil {
		return false
	}
	j.cancel.Store(true)
	return true
}

// Active reports whether a job is running.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.job != nil
}

// Wait blocks until the pipeline is idle or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the summary of the most recently ended job.
func (p *Pipeline) Last() (Summary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Summary{}, false
	}
	return *p.last, true
}

// Snapshot returns the current progress. All counters are zero when idle.
func (p *Pipeline) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job == nil {
		return Progress{State: p.state}
	}
	j := p.job
	return Progress{
		JobID:      j.id,
		State:      p.state,
		Filename:   j.rec.Filename,
		Output:     j.output,
		Bytes:      j.bytes.Load(),
		Total:      j.rec.Size,
		Percentage: j.percentage(),
		Cancelling: j.cancel.Load(),
		StartedAt:  j.started,
	}
}

// KillEncoder terminates the active job's encoder process group. It is a
// no-op when idle or while the encoder is still being launched.
func (p *Pipeline) KillEncoder(grace time.Duration) error {
	p.mu.Lock()
	j := p.job
	var proc Process
	if j != nil {
		proc = j.proc
	}
	p.mu.Unlock()

	if proc == nil {
		return nil
	}
	p.logger.Warn().
		Str(xglog.FieldEvent, "encode.kill").
		Str(xglog.FieldJobID, j.id).
		Int(xglog.FieldPID, proc.PID()).
		Msg("terminating encoder process group")
	return proc.Terminate(grace)
}
