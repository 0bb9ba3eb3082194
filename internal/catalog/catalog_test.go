// SPDX-License-Identifier: MIT

package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshot_IsolatedFromCallerSlice(t *testing.T) {
	recs := []Recording{{Filename: "a.mpg", Title: "A"}, {Filename: "b.mpg", Title: "B"}}
	s := NewSnapshot("mythbox", recs, time.Now())

	recs[0].Title = "changed"

	got, ok := s.Lookup("a.mpg")
	require.True(t, ok)
	require.Equal(t, "A", got.Title)
	require.Equal(t, 2, s.Len())
}

func TestSnapshot_NilSafe(t *testing.T) {
	var s *Snapshot
	require.Equal(t, 0, s.Len())
	require.Nil(t, s.Recordings())
	_, ok := s.Lookup("x")
	require.False(t, ok)
}

func TestCatalog_ReplaceKeepsOldReadersStable(t *testing.T) {
	var c Catalog
	require.Nil(t, c.Current())

	first := NewSnapshot("h", []Recording{{Filename: "1"}}, time.Now())
	c.Replace(first)
	held := c.Current()

	prev := c.Replace(NewSnapshot("h", []Recording{{Filename: "2"}, {Filename: "3"}}, time.Now()))
	require.Same(t, first, prev)
	require.Equal(t, 1, held.Len())
	require.Equal(t, 2, c.Current().Len())
}

func TestRecording_Display(t *testing.T) {
	r := Recording{Title: "News", Subtitle: "Evening", Size: 3 * 1024 * 1024, Duration: 95 * time.Minute}
	require.Equal(t, "News - Evening", r.DisplayTitle())
	require.Equal(t, "3.0 MiB", r.HumanSize())
	require.Equal(t, "95 minutes", r.HumanDuration())

	r.Subtitle = ""
	require.Equal(t, "News", r.DisplayTitle())
	require.Equal(t, "0 B", Recording{}.HumanSize())
}
