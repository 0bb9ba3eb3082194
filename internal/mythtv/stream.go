// SPDX-License-Identifier: MIT

package mythtv

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/metrics"
)

// ChunkSize is the read size used when streaming recordings.
const ChunkSize = 64 << 10

// Stream is a finite, non-restartable sequence of chunks of one recording.
type Stream struct {
	rec       catalog.Recording
	body      io.ReadCloser
	buf       []byte
	read      int64
	done      bool
	closeOnce sync.Once
	conn      *Conn
}

// StreamRecording opens the recording's content for sequential reading.
// Each Next call blocks on network I/O for at most one chunk.
func (c *Conn) StreamRecording(ctx context.Context, rec catalog.Recording) (*Stream, error) {
	const op = "stream_recording"
	if c.closed.Load() {
		return nil, &Error{Sentinel: ErrClosed, Operation: op}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/Content/GetRecording?"+recordingQuery(rec).Encode(), nil)
	if err != nil {
		return nil, &Error{Sentinel: ErrStreamIO, Operation: op, Err: err}
	}
	res, err := c.stream.Do(req)
	metrics.IncBackendRequest(op, err)
	if err != nil {
		return nil, &Error{Sentinel: ErrStreamIO, Operation: op, Err: err}
	}
	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		_ = res.Body.Close()
		return nil, &Error{Sentinel: ErrStreamIO, Operation: op, Status: res.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	return &Stream{rec: rec, body: res.Body, buf: make([]byte, ChunkSize), conn: c}, nil
}

// Next returns the next chunk, or io.EOF once the recording is exhausted.
// The returned slice is only valid until the following call.
func (s *Stream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	for {
		n, err := s.body.Read(s.buf)
		s.read += int64(n)
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				s.checkLength()
				if n > 0 {
					return s.buf[:n], nil
				}
				return nil, io.EOF
			}
			return nil, &Error{Sentinel: ErrStreamIO, Operation: "stream_recording", Err: err}
		}
		if n > 0 {
			return s.buf[:n], nil
		}
	}
}

// BytesRead reports how many bytes have been handed out so far.
func (s *Stream) BytesRead() int64 {
	return s.read
}

// Close releases the underlying response body. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		err = s.body.Close()
	})
	return err
}

func (s *Stream) checkLength() {
	if s.rec.Size > 0 && s.read != s.rec.Size {
		s.conn.logger.Warn().
			Str(xglog.FieldEvent, "mythtv.stream_length_mismatch").
			Str(xglog.FieldRecording, s.rec.Filename).
			Int64(xglog.FieldBytes, s.read).
			Int64(xglog.FieldTotalBytes, s.rec.Size).
			Msg("recording stream length differs from declared size")
	}
}
