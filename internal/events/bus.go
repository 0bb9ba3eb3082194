// SPDX-License-Identifier: MIT

package events

import (
	"sync"
	"time"

	"github.com/ManuGH/myth2dsv/internal/metrics"
)

// DefaultBuffer is the per-subscriber queue length used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 64

// Bus fans events out to subscribers and remembers the latest event per kind.
// When a subscriber's queue is full the oldest queued event is overwritten.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	latest map[Kind]Event
	now    func() time.Time
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		latest: make(map[Kind]Event),
		now:    time.Now,
	}
}

// Publish stamps and distributes e. It never blocks.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[e.Kind] = e
	for s := range b.subs {
		s.offer(e)
	}
}

// Latest returns the most recent event of the given kind.
func (b *Bus) Latest(kind Kind) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.latest[kind]
	return e, ok
}

// LatestAll returns a copy of the most recent event for every kind seen so far.
func (b *Bus) LatestAll() map[Kind]Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Kind]Event, len(b.latest))
	for k, v := range b.latest {
		out[k] = v
	}
	return out
}

// Subscribe registers a new subscriber with the given queue length.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{bus: b, ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Subscription is a single consumer's view of the bus.
type Subscription struct {
	bus  *Bus
	ch   chan Event
	once sync.Once
}

// C returns the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// offer is called with the bus lock held.
func (s *Subscription) offer(e Event) {
	select {
	case s.ch <- e:
		return
	default:
	}
	// Full: overwrite the oldest queued event.
	select {
	case old := <-s.ch:
		metrics.IncEventDropped(string(old.Kind))
	default:
	}
	select {
	case s.ch <- e:
	default:
		metrics.IncEventDropped(string(e.Kind))
	}
}
