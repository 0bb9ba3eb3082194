// SPDX-License-Identifier: MIT

package encode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/events"
)

// fakeEncoder consumes stdin through an io.Pipe into a buffer.
type fakeEncoder struct {
	stdin  *io.PipeWriter
	done   chan struct{}
	mu     sync.Mutex
	buf    bytes.Buffer
	exit   error
	output string
}

func newFakeEncoder(output string, exit error) *fakeEncoder {
	r, w := io.Pipe()
	e := &fakeEncoder{stdin: w, done: make(chan struct{}), exit: exit, output: output}
	go func() {
		defer close(e.done)
		chunk := make([]byte, 4096)
		for {
			n, err := r.Read(chunk)
			e.mu.Lock()
			e.buf.Write(chunk[:n])
			e.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	return e
}

func (e *fakeEncoder) Stdin() io.WriteCloser { return e.stdin }
func (e *fakeEncoder) PID() int              { return 4242 }

func (e *fakeEncoder) Wait() error {
	<-e.done
	return e.exit
}

func (e *fakeEncoder) Terminate(time.Duration) error {
	_ = e.stdin.CloseWithError(errors.New("terminated"))
	<-e.done
	return nil
}

func (e *fakeEncoder) received() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.buf.Bytes()...)
}

type fakeLauncher struct {
	mu       sync.Mutex
	err      error
	exit     error
	launched []*fakeEncoder
}

func (l *fakeLauncher) Launch(_ context.Context, output string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	e := newFakeEncoder(output, l.exit)
	l.launched = append(l.launched, e)
	return e, nil
}

func (l *fakeLauncher) last() *fakeEncoder {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.launched) == 0 {
		return nil
	}
	return l.launched[len(l.launched)-1]
}

// fakeStream hands out content in fixed-size chunks. When gate is set, each
// chunk after the first waits for a value on it.
type fakeStream struct {
	content []byte
	size    int
	off     int
	calls   atomic.Int32
	failAt  int // 1-based chunk index that fails; zero never fails
	gate    chan struct{}
	closed  bool
}

func (s *fakeStream) Next() ([]byte, error) {
	call := int(s.calls.Add(1))
	if s.gate != nil && call > 1 {
		<-s.gate
	}
	if s.failAt > 0 && call == s.failAt {
		return nil, errors.New("connection reset by peer")
	}
	if s.off >= len(s.content) {
		return nil, io.EOF
	}
	end := min(s.off+s.size, len(s.content))
	chunk := s.content[s.off:end]
	s.off = end
	return chunk, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func streamerOf(s *fakeStream) Streamer {
	return StreamerFunc(func(context.Context, catalog.Recording) (ChunkStream, error) {
		return s, nil
	})
}

type eventLog struct {
	mu  sync.Mutex
	evs []events.Event
}

func (l *eventLog) Publish(e events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evs = append(l.evs, e)
}

func (l *eventLog) all() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.evs...)
}

func (l *eventLog) statuses() []string {
	var out []string
	for _, e := range l.all() {
		if e.Kind == events.KindStatus {
			out = append(out, e.Status)
		}
	}
	return out
}

func (l *eventLog) progress() []events.Event {
	var out []events.Event
	for _, e := range l.all() {
		if e.Kind == events.KindEncodeProgress {
			out = append(out, e)
		}
	}
	return out
}
