// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "myth2dsv_http_request_duration_seconds",
		Help:    "Control API request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// HTTPRequestsInFlight is the number of control API requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "myth2dsv_http_requests_in_flight",
		Help: "Current number of control API requests being served",
	})

	// EventSubscribers is the number of connected event stream clients.
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "myth2dsv_event_subscribers",
		Help: "Connected event stream clients",
	})
)

// ObserveHTTPRequest records one handled request. route should be the
// router pattern, not the raw path, to keep cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
