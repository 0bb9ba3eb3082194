// SPDX-License-Identifier: MIT

// Package events carries one-way progress and status notifications from
// worker goroutines to whoever presents them. Delivery is best-effort and
// latest-value-wins: producers never block and never get acknowledgements.
package events

import (
	"fmt"
	"time"
)

// Kind classifies a notification.
type Kind string

const (
	KindCatalogLoading    Kind = "catalog-loading"
	KindThumbnailProgress Kind = "thumbnail-progress"
	KindEncodeProgress    Kind = "encode-progress"
	KindStatus            Kind = "status"
	KindCatalogChanged    Kind = "catalog-changed"
)

// Event is a single notification. Payload fields are populated per kind:
// thumbnail-progress uses Index/Total, encode-progress uses Percentage,
// Bytes and Finished, status uses Status.
type Event struct {
	Kind       Kind      `json:"kind"`
	Time       time.Time `json:"time"`
	Index      int       `json:"index,omitempty"`
	Total      int       `json:"total,omitempty"`
	Percentage float64   `json:"percentage"`
	Bytes      int64     `json:"bytes,omitempty"`
	Finished   bool      `json:"finished,omitempty"`
	Status     string    `json:"status,omitempty"`
	Host       string    `json:"host,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
}

// String renders the event the way a status line would show it.
func (e Event) String() string {
	switch e.Kind {
	case KindThumbnailProgress:
		return fmt.Sprintf("Generating preview %d/%d", e.Index, e.Total)
	case KindEncodeProgress:
		return fmt.Sprintf("%.2f%% complete", e.Percentage)
	case KindCatalogLoading:
		return "Loading recordings from " + e.Host
	case KindCatalogChanged:
		return "Recordings updated"
	default:
		return e.Status
	}
}

// Publisher accepts notifications. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f(e).
func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})

// Status builds a status event.
func Status(s string) Event {
	return Event{Kind: KindStatus, Status: s}
}

// ThumbnailProgress builds a "Generating preview i/N" event.
func ThumbnailProgress(index, total int) Event {
	return Event{Kind: KindThumbnailProgress, Index: index, Total: total}
}

// EncodeProgress builds an encode progress event.
func EncodeProgress(jobID string, percentage float64, bytes int64, finished bool) Event {
	return Event{Kind: KindEncodeProgress, JobID: jobID, Percentage: percentage, Bytes: bytes, Finished: finished}
}

// CatalogLoading marks the start of a listing against host.
func CatalogLoading(host string) Event {
	return Event{Kind: KindCatalogLoading, Host: host}
}

// CatalogChanged asks the presentation layer to redraw the listing.
func CatalogChanged() Event {
	return Event{Kind: KindCatalogChanged}
}
