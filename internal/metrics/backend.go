// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequests counts backend API calls by operation and result.
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myth2dsv_backend_requests_total",
		Help: "Backend API requests by operation and result",
	}, []string{"operation", "result"})

	// BackendConnections tracks currently open backend connections.
	BackendConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "myth2dsv_backend_connections",
		Help: "Number of open backend connections",
	})

	// CatalogRecordings is the size of the current recording catalog.
	CatalogRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "myth2dsv_catalog_recordings",
		Help: "Number of recordings in the current catalog snapshot",
	})

	// ThumbnailFetches counts cache outcomes per prefetched recording.
	ThumbnailFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myth2dsv_thumbnail_fetch_total",
		Help: "Thumbnail cache outcomes (hit, stored, error)",
	}, []string{"result"})
)

// IncBackendRequest records the outcome of one backend call.
func IncBackendRequest(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BackendRequests.WithLabelValues(operation, result).Inc()
}

// IncThumbnailFetch records a thumbnail cache outcome.
func IncThumbnailFetch(result string) {
	ThumbnailFetches.WithLabelValues(result).Inc()
}
