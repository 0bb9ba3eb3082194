// SPDX-License-Identifier: MIT

package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ManuGH/myth2dsv/internal/catalog"
	"github.com/ManuGH/myth2dsv/internal/encode"
	"github.com/ManuGH/myth2dsv/internal/events"
	"github.com/ManuGH/myth2dsv/internal/mythtv"
	"github.com/ManuGH/myth2dsv/internal/thumbcache"
	"github.com/stretchr/testify/require"
)

func TestSession_AgainstMockBackend(t *testing.T) {
	m := mythtv.NewMockServer()
	t.Cleanup(m.Close)

	content := bytes.Repeat([]byte("ts"), 150_000)
	rec := m.AddRecording(catalog.Recording{
		Filename: "1001_20240301190000.ts",
		Title:    "News",
		Subtitle: "Late",
		ChanID:   1001,
		Start:    time.Date(2024, 3, 1, 19, 0, 0, 0, time.UTC),
		Duration: 30 * time.Minute,
	}, content)

	bus := events.NewBus()
	launcher := &sinkLauncher{}
	s := New(Config{
		Dial:      MythTVDialer(mythtv.Options{Timeout: 5 * time.Second}),
		Launcher:  launcher,
		Cache:     thumbcache.New(t.TempDir(), thumbcache.DefaultPrefix, thumbcache.WithHeight(64)),
		Publisher: bus,
		OutputDir: t.TempDir(),
	})

	require.NoError(t, s.Refresh(context.Background(), m.Host()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitPrefetch(ctx))
	require.True(t, s.Cache().Has(rec.Filename))

	out, err := s.StartOrCancelEncode(context.Background(), rec.Filename)
	require.NoError(t, err)
	require.Equal(t, encode.OutcomeStarted, out)
	require.NoError(t, s.pipeline.Wait(ctx))

	require.Len(t, launcher.procs, 1)
	require.Equal(t, rec.Size, launcher.procs[0].n.Load())

	final, ok := bus.Latest(events.KindEncodeProgress)
	require.True(t, ok)
	require.True(t, final.Finished)
	require.Equal(t, 100.0, final.Percentage)

	done, err := s.RequestShutdown(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, done)
}
