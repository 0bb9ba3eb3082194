// SPDX-License-Identifier: MIT

// Package catalog holds the recordings known for the current backend session.
package catalog

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Recording is a single captured programme stored on the backend.
// Filename is the natural key. Values are snapshots and are never mutated
// after listing.
type Recording struct {
	Filename    string        `json:"filename"`
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle"`
	Channel     string        `json:"channel"`
	Start       time.Time     `json:"start"`
	Duration    time.Duration `json:"duration"`
	Size        int64         `json:"size"`
	Description string        `json:"description"`

	// Backend locator. RecordedID is zero on backends that predate
	// recorded ids, in which case ChanID + Start address the recording.
	RecordedID int64 `json:"recorded_id,omitempty"`
	ChanID     int64 `json:"chan_id,omitempty"`
}

// DisplayTitle joins title and subtitle the way listings show them.
func (r Recording) DisplayTitle() string {
	if r.Subtitle == "" {
		return r.Title
	}
	return r.Title + " - " + r.Subtitle
}

// HumanSize renders the size in IEC units, e.g. "1.2 GiB".
func (r Recording) HumanSize() string {
	if r.Size <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(r.Size))
}

// HumanDuration renders the duration in whole minutes.
func (r Recording) HumanDuration() string {
	return fmt.Sprintf("%d minutes", int64(r.Duration/time.Minute))
}

// DisplayStart formats the start time like "Mon, Jan 02 08:04 PM".
func (r Recording) DisplayStart() string {
	if r.Start.IsZero() {
		return ""
	}
	return r.Start.Local().Format("Mon, Jan 02 03:04 PM")
}
