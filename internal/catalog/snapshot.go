// SPDX-License-Identifier: MIT

package catalog

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable, ordered listing of recordings. A refresh
// replaces the whole snapshot; readers holding an older one are unaffected.
type Snapshot struct {
	Host       string
	LoadedAt   time.Time
	recordings []Recording
	index      map[string]int
}

// NewSnapshot copies recs so later changes to the caller's slice do not leak in.
func NewSnapshot(host string, recs []Recording, loadedAt time.Time) *Snapshot {
	own := make([]Recording, len(recs))
	copy(own, recs)
	idx := make(map[string]int, len(own))
	for i, r := range own {
		if _, dup := idx[r.Filename]; !dup {
			idx[r.Filename] = i
		}
	}
	return &Snapshot{Host: host, LoadedAt: loadedAt, recordings: own, index: idx}
}

// Len returns the number of recordings. Safe on a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.recordings)
}

// Recordings returns a copy of the listing in backend order.
func (s *Snapshot) Recordings() []Recording {
	if s == nil {
		return nil
	}
	out := make([]Recording, len(s.recordings))
	copy(out, s.recordings)
	return out
}

// Lookup finds a recording by filename.
func (s *Snapshot) Lookup(filename string) (Recording, bool) {
	if s == nil {
		return Recording{}, false
	}
	i, ok := s.index[filename]
	if !ok {
		return Recording{}, false
	}
	return s.recordings[i], true
}

// Catalog publishes the current snapshot to concurrent readers.
type Catalog struct {
	current atomic.Pointer[Snapshot]
}

// Current returns the latest snapshot, or nil before the first successful listing.
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Replace swaps in a new snapshot and returns the previous one.
func (c *Catalog) Replace(s *Snapshot) *Snapshot {
	return c.current.Swap(s)
}
