// SPDX-License-Identifier: MIT

package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(8)
	defer sub.Close()

	b.Publish(ThumbnailProgress(1, 2))
	b.Publish(ThumbnailProgress(2, 2))
	b.Publish(Status("Idle"))

	got := []string{(<-sub.C()).String(), (<-sub.C()).String(), (<-sub.C()).String()}
	require.Equal(t, []string{"Generating preview 1/2", "Generating preview 2/2", "Idle"}, got)
}

func TestBus_OverwritesOldestWhenFull(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(2)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		b.Publish(EncodeProgress("job", float64(i*20), int64(i), false))
	}

	first := <-sub.C()
	second := <-sub.C()
	require.Equal(t, 80.0, first.Percentage)
	require.Equal(t, 100.0, second.Percentage)
}

func TestBus_LatestPerKind(t *testing.T) {
	b := NewBus()
	_, ok := b.Latest(KindStatus)
	require.False(t, ok)

	b.Publish(Status("Initialising..."))
	b.Publish(EncodeProgress("j1", 12.5, 100, false))
	b.Publish(Status("Encode finished!"))

	st, ok := b.Latest(KindStatus)
	require.True(t, ok)
	require.Equal(t, "Encode finished!", st.Status)
	require.False(t, st.Time.IsZero())

	all := b.LatestAll()
	require.Len(t, all, 2)
	require.Equal(t, 12.5, all[KindEncodeProgress].Percentage)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(0)
	sub.Close()
	sub.Close()

	_, open := <-sub.C()
	require.False(t, open)

	// Publishing after close must not panic.
	b.Publish(Status("Idle"))
}

func TestEvent_String(t *testing.T) {
	require.Equal(t, "42.50% complete", EncodeProgress("", 42.5, 0, false).String())
	require.Equal(t, "Loading recordings from mythbox", CatalogLoading("mythbox").String())
	require.Equal(t, "Recordings updated", CatalogChanged().String())
}
