// SPDX-License-Identifier: MIT

package encode

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/events"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testChunk = 64 << 10

func testRecording(size int) catalog.Recording {
	return catalog.Recording{
		Filename: "1001_20240301190000.ts",
		Title:    "Monday's Game",
		Subtitle: "Live!",
		Size:     int64(size),
	}
}

func newTestPipeline(t *testing.T, l Launcher) (*Pipeline, *eventLog, chan Summary) {
	t.Helper()
	log := &eventLog{}
	done := make(chan Summary, 4)
	p := New(Config{
		Launcher:  l,
		OutputDir: "/home/user/Desktop",
		Publisher: log,
		OnIdle:    func(s Summary) { done <- s },
	})
	return p, log, done
}

func waitSummary(t *testing.T, done <-chan Summary) Summary {
	t.Helper()
	select {
	case s := <-done:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("encode job did not finish")
		return Summary{}
	}
}

func TestBaseName(t *testing.T) {
	tests := []struct {
		title, subtitle, want string
	}{
		{"Monday's Game: Live!", "", "Monday_s_Game_Live_"},
		{"News", "Evening", "News_Evening"},
		{"Film", "", "Film"},
		{"Top Gear", "Series 2 - Ep. 3", "Top_Gear_Series_2_Ep_3"},
		{"Café  Olé", "", "Caf_Ol_"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title+"/"+tt.subtitle, func(t *testing.T) {
			require.Equal(t, tt.want, BaseName(tt.title, tt.subtitle))
		})
	}
}

func TestOutputPath(t *testing.T) {
	p := New(Config{OutputDir: "/out"})
	require.Equal(t, filepath.Join("/out", "Monday_s_Game_Live_.dsv"), p.OutputPath(testRecording(1)))
}

func TestStart_StreamsEveryByteAndFinishes(t *testing.T) {
	content := bytes.Repeat([]byte{0x47}, 3*testChunk+1000)
	l := &fakeLauncher{}
	p, log, done := newTestPipeline(t, l)

	out, err := p.Start(context.Background(), testRecording(len(content)), streamerOf(&fakeStream{content: content, size: testChunk}))
	require.NoError(t, err)
	require.Equal(t, OutcomeStarted, out)

	sum := waitSummary(t, done)
	require.Equal(t, ResultFinished, sum.Result)
	require.NoError(t, sum.Err)
	require.Equal(t, int64(len(content)), sum.Bytes)
	require.Equal(t, content, l.last().received())
	require.Equal(t, "/home/user/Desktop/Monday_s_Game_Live_.dsv", l.last().output)

	prog := log.progress()
	require.NotEmpty(t, prog)
	last := prog[len(prog)-1]
	require.True(t, last.Finished)
	require.Equal(t, 100.0, last.Percentage)
	for i := 1; i < len(prog); i++ {
		require.GreaterOrEqual(t, prog[i].Percentage, prog[i-1].Percentage, "percentage must not decrease")
		require.LessOrEqual(t, prog[i].Percentage, 100.0)
	}
	require.Equal(t, []string{"Initialising...", "Encode finished!"}, log.statuses())

	require.NoError(t, p.Wait(context.Background()))
	snap := p.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Zero(t, snap.Bytes)
	require.Zero(t, snap.Percentage)
	require.Empty(t, snap.JobID)

	lastSum, ok := p.Last()
	require.True(t, ok)
	require.Equal(t, sum.JobID, lastSum.JobID)
	require.Equal(t, ResultFinished, lastSum.Result)
}

func TestStart_SecondStartCancelsAfterCurrentChunk(t *testing.T) {
	content := bytes.Repeat([]byte{1}, 10*testChunk)
	stream := &fakeStream{content: content, size: testChunk, gate: make(chan struct{})}
	l := &fakeLauncher{}
	p, log, done := newTestPipeline(t, l)

	out, err := p.Start(context.Background(), testRecording(len(content)), streamerOf(stream))
	require.NoError(t, err)
	require.Equal(t, OutcomeStarted, out)

	// The pump is parked inside the second Next call.
	require.Eventually(t, func() bool { return stream.calls.Load() == 2 }, 5*time.Second, time.Millisecond)
	require.True(t, p.Active())

	out, err = p.Start(context.Background(), testRecording(len(content)), streamerOf(&fakeStream{}))
	require.NoError(t, err)
	require.Equal(t, OutcomeCancelRequested, out)
	require.True(t, p.Snapshot().Cancelling)

	close(stream.gate)
	sum := waitSummary(t, done)

	require.Equal(t, ResultCancelled, sum.Result)
	require.Equal(t, int64(2*testChunk), sum.Bytes, "only the in-flight chunk may follow the request")
	require.Len(t, l.last().received(), 2*testChunk)
	require.Equal(t, int32(2), stream.calls.Load())
	require.True(t, stream.closed)
	require.Equal(t, []string{"Initialising...", "Encode cancelled"}, log.statuses())
	prog := log.progress()
	for _, e := range prog {
		require.False(t, e.Finished, "cancelled jobs must not report completion")
	}
	reset := prog[len(prog)-1]
	require.Zero(t, reset.Percentage, "progress is reset once the job ends")
	require.Zero(t, reset.Bytes)
	require.Len(t, l.launched, 1, "the toggle must not launch a second encoder")
}

func TestStart_RejectsEmptyRecording(t *testing.T) {
	l := &fakeLauncher{}
	p, log, _ := newTestPipeline(t, l)

	_, err := p.Start(context.Background(), testRecording(0), streamerOf(&fakeStream{}))
	require.ErrorIs(t, err, ErrEmptyRecording)
	require.Empty(t, l.launched)
	require.False(t, p.Active())
	require.Len(t, log.statuses(), 1)
	_, ok := p.Last()
	require.False(t, ok, "a rejected start is not a job")
}

func TestStart_LaunchFailure(t *testing.T) {
	l := &fakeLauncher{err: errors.New("exec: \"dsvideo\": executable file not found")}
	p, log, done := newTestPipeline(t, l)

	_, err := p.Start(context.Background(), testRecording(100), streamerOf(&fakeStream{}))
	require.ErrorIs(t, err, ErrSubprocessLaunch)

	sum := waitSummary(t, done)
	require.Equal(t, ResultFailed, sum.Result)
	require.False(t, p.Active())
	require.Equal(t, StateIdle, p.Snapshot().State)
	require.Len(t, log.statuses(), 2)
	require.Contains(t, log.statuses()[1], "Encode failed: ")
}

func TestStart_StreamFailureEndsJob(t *testing.T) {
	content := bytes.Repeat([]byte{2}, 4*testChunk)
	l := &fakeLauncher{}
	p, log, done := newTestPipeline(t, l)

	_, err := p.Start(context.Background(), testRecording(len(content)), streamerOf(&fakeStream{content: content, size: testChunk, failAt: 3}))
	require.NoError(t, err)

	sum := waitSummary(t, done)
	require.Equal(t, ResultFailed, sum.Result)
	require.ErrorIs(t, sum.Err, ErrStreamIO)
	require.Equal(t, int64(2*testChunk), sum.Bytes)
	require.Len(t, log.statuses(), 2)
	require.Contains(t, log.statuses()[1], "Encode failed: ")

	prog := log.progress()
	require.NotZero(t, prog[len(prog)-2].Percentage)
	require.Zero(t, prog[len(prog)-1].Percentage, "progress is reset once the job ends")
}

func TestStart_OpenStreamFailure(t *testing.T) {
	l := &fakeLauncher{}
	p, _, done := newTestPipeline(t, l)
	src := StreamerFunc(func(context.Context, catalog.Recording) (ChunkStream, error) {
		return nil, errors.New("backend: connection closed")
	})

	_, err := p.Start(context.Background(), testRecording(10), src)
	require.NoError(t, err)

	sum := waitSummary(t, done)
	require.ErrorIs(t, sum.Err, ErrStreamIO)
	require.Empty(t, l.last().received())
}

func TestStart_EncoderExitError(t *testing.T) {
	content := []byte("tiny recording")
	l := &fakeLauncher{exit: errors.New("exit status 1")}
	p, log, done := newTestPipeline(t, l)

	_, err := p.Start(context.Background(), testRecording(len(content)), streamerOf(&fakeStream{content: content, size: testChunk}))
	require.NoError(t, err)

	sum := waitSummary(t, done)
	require.Equal(t, ResultFailed, sum.Result)
	require.ErrorIs(t, sum.Err, ErrEncoderExit)
	for _, e := range log.progress() {
		require.False(t, e.Finished)
	}
}

func TestWait_HonoursDeadline(t *testing.T) {
	content := bytes.Repeat([]byte{3}, 2*testChunk)
	stream := &fakeStream{content: content, size: testChunk, gate: make(chan struct{})}
	l := &fakeLauncher{}
	p, _, done := newTestPipeline(t, l)

	_, err := p.Start(context.Background(), testRecording(len(content)), streamerOf(stream))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return stream.calls.Load() == 2 }, 5*time.Second, time.Millisecond)
	require.True(t, p.RequestCancel())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)

	close(stream.gate)
	waitSummary(t, done)
	require.NoError(t, p.Wait(context.Background()))
	require.False(t, p.RequestCancel())
}

func TestKillEncoder_Idle(t *testing.T) {
	p := New(Config{Publisher: events.Discard})
	require.NoError(t, p.KillEncoder(time.Millisecond))
}
