// SPDX-License-Identifier: MIT

//go:build linux

package encode

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/stretchr/testify/require"
)

func TestExecLauncher_PipesRecordingIntoEncoder(t *testing.T) {
	out := t.TempDir()
	l := &ExecLauncher{Binary: "/bin/sh", Args: []string{"-c", `cat > "$0"`, OutputPlaceholder}}
	done := make(chan Summary, 1)
	p := New(Config{Launcher: l, OutputDir: out, OnIdle: func(s Summary) { done <- s }})

	content := bytes.Repeat([]byte("0123456789abcdef"), 20000)
	rec := catalog.Recording{Filename: "x.ts", Title: "Film", Size: int64(len(content))}
	_, err := p.Start(context.Background(), rec, streamerOf(&fakeStream{content: content, size: testChunk}))
	require.NoError(t, err)

	sum := waitSummary(t, done)
	require.Equal(t, ResultFinished, sum.Result)

	got, err := os.ReadFile(filepath.Join(out, "Film.dsv"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestExecLauncher_MissingBinary(t *testing.T) {
	l := &ExecLauncher{Dir: t.TempDir(), Binary: "dsvideo"}
	p := New(Config{Launcher: l, OutputDir: t.TempDir()})

	_, err := p.Start(context.Background(), catalog.Recording{Filename: "x.ts", Title: "x", Size: 1}, streamerOf(&fakeStream{}))
	require.ErrorIs(t, err, ErrSubprocessLaunch)
	require.False(t, p.Active())
}

func TestKillEncoder_UnblocksStuckEncoder(t *testing.T) {
	// The encoder never reads stdin, so the pump blocks once the pipe buffer is full.
	l := &ExecLauncher{Binary: "/bin/sh", Args: []string{"-c", "sleep 30", OutputPlaceholder}}
	done := make(chan Summary, 1)
	p := New(Config{Launcher: l, OutputDir: t.TempDir(), OnIdle: func(s Summary) { done <- s }})

	content := bytes.Repeat([]byte{9}, 64*testChunk)
	rec := catalog.Recording{Filename: "big.ts", Title: "Big", Size: int64(len(content))}
	_, err := p.Start(context.Background(), rec, streamerOf(&fakeStream{content: content, size: testChunk}))
	require.NoError(t, err)

	require.True(t, p.RequestCancel())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, p.KillEncoder(2*time.Second))
	sum := waitSummary(t, done)
	require.Equal(t, ResultCancelled, sum.Result)
	require.Less(t, sum.Bytes, int64(len(content)))
}
