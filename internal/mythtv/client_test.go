// SPDX-License-Identifier: MIT

package mythtv

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/stretchr/testify/require"
)

func newMockWithRecordings(t *testing.T) (*MockServer, []catalog.Recording) {
	t.Helper()
	m := NewMockServer()
	t.Cleanup(m.Close)

	start := time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC)
	a := m.AddRecording(catalog.Recording{
		Filename: "1001_20240301190000.ts", Title: "News", Subtitle: "Evening",
		Channel: "BBC One", ChanID: 1001, Start: start, Duration: 30 * time.Minute,
	}, bytes.Repeat([]byte("a"), 3*ChunkSize+17))
	b := m.AddRecording(catalog.Recording{
		Filename: "1002_20240302200000.ts", Title: "Film",
		Channel: "BBC Two", ChanID: 1002, Start: start.Add(25 * time.Hour), Duration: 2 * time.Hour,
	}, []byte("tiny"))
	return m, []catalog.Recording{a, b}
}

func TestConnect_Handshake(t *testing.T) {
	m, _ := newMockWithRecordings(t)

	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, m.Host(), c.Host())
	require.Equal(t, 1, m.Hits("/Myth/GetHostName"))
}

func TestConnect_UnreachableHost(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1", Options{Timeout: time.Second})
	require.ErrorIs(t, err, ErrConnection)
}

func TestConnect_HandshakeFailure(t *testing.T) {
	m, _ := newMockWithRecordings(t)
	m.FailNext("/Myth/GetHostName", 1)

	_, err := Connect(context.Background(), m.Host(), Options{})
	require.ErrorIs(t, err, ErrConnection)
}

func TestConnect_EmptyHost(t *testing.T) {
	_, err := Connect(context.Background(), "  ", Options{})
	require.ErrorIs(t, err, ErrConnection)
}

func TestListRecordings(t *testing.T) {
	m, want := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)
	defer c.Close()

	got, err := c.ListRecordings(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, want[0].Filename, got[0].Filename)
	require.Equal(t, "News", got[0].Title)
	require.Equal(t, "Evening", got[0].Subtitle)
	require.Equal(t, "BBC One", got[0].Channel)
	require.Equal(t, want[0].Size, got[0].Size)
	require.Equal(t, 30*time.Minute, got[0].Duration)
	require.True(t, want[0].Start.Equal(got[0].Start))
	require.Equal(t, want[0].RecordedID, got[0].RecordedID)
	require.Equal(t, int64(1001), got[0].ChanID)
	require.Equal(t, "Film", got[1].Title)
}

func TestListRecordings_QueryError(t *testing.T) {
	m, _ := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)
	defer c.Close()

	m.FailNext("/Dvr/GetRecordedList", 1)
	_, err = c.ListRecordings(context.Background())
	require.ErrorIs(t, err, ErrQuery)

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, 500, e.Status)
}

func TestFetchThumbnail(t *testing.T) {
	m, recs := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)
	defer c.Close()

	img, err := c.FetchThumbnail(context.Background(), recs[0], 64)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(img, []byte("\x89PNG")), "expected PNG payload")

	_, err = c.FetchThumbnail(context.Background(), catalog.Recording{RecordedID: 999}, 64)
	require.ErrorIs(t, err, ErrQuery)
}

func TestStreamRecording_ChunksSumToSize(t *testing.T) {
	m, recs := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)
	defer c.Close()

	s, err := c.StreamRecording(context.Background(), recs[0])
	require.NoError(t, err)
	defer s.Close()

	var total int64
	chunks := 0
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, len(chunk), ChunkSize)
		total += int64(len(chunk))
		chunks++
	}
	require.Equal(t, recs[0].Size, total)
	require.Equal(t, total, s.BytesRead())
	require.Greater(t, chunks, 1)

	// Not restartable.
	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamRecording_NotFound(t *testing.T) {
	m, _ := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.StreamRecording(context.Background(), catalog.Recording{RecordedID: 404})
	require.ErrorIs(t, err, ErrStreamIO)
}

func TestClose_IdempotentAndBlocksFurtherCalls(t *testing.T) {
	m, recs := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.ListRecordings(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	_, err = c.StreamRecording(context.Background(), recs[0])
	require.ErrorIs(t, err, ErrClosed)
}

func TestBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	m, _ := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{FailureThreshold: 2, ResetTimeout: time.Hour})
	require.NoError(t, err)
	defer c.Close()

	m.FailNext("/Dvr/GetRecordedList", 10)
	for i := 0; i < 2; i++ {
		_, err := c.ListRecordings(context.Background())
		require.ErrorIs(t, err, ErrQuery)
	}
	_, err = c.ListRecordings(context.Background())
	require.ErrorIs(t, err, ErrQuery)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, 2, m.Hits("/Dvr/GetRecordedList"))
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	m, _ := newMockWithRecordings(t)
	c, err := Connect(context.Background(), m.Host(), Options{FailureThreshold: 1, ResetTimeout: time.Hour})
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.FetchThumbnail(context.Background(), catalog.Recording{RecordedID: 999}, 64)
		require.ErrorIs(t, err, ErrQuery)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
	require.Equal(t, StateClosed, c.breaker.State())
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"mythbox", "mythbox:6544"},
		{"mythbox:8080", "mythbox:8080"},
		{"192.168.1.5", "192.168.1.5:6544"},
		{"::1", "[::1]:6544"},
		{"[::1]", "[::1]:6544"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			require.Equal(t, tt.want, hostPort(tt.host, DefaultPort))
		})
	}
}
