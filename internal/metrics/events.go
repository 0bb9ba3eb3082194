// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventsDropped counts notifications discarded because a subscriber lagged.
var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "myth2dsv_events_dropped_total",
	Help: "Progress/status events overwritten before a subscriber read them",
}, []string{"kind"})

// IncEventDropped records one overwritten event.
func IncEventDropped(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	EventsDropped.WithLabelValues(kind).Inc()
}
