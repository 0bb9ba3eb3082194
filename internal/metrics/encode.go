// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EncodeJobs counts finished encode jobs by result.
	EncodeJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myth2dsv_encode_jobs_total",
		Help: "Encode jobs by result (success, cancelled, failed, launch_failed)",
	}, []string{"result"})

	// EncodeBytes counts recording bytes written into the encoder.
	EncodeBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myth2dsv_encode_bytes_total",
		Help: "Total recording bytes piped into the encoder",
	})

	// EncodeActive is 1 while an encode job is running.
	EncodeActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "myth2dsv_encode_active",
		Help: "Whether an encode job is currently active",
	})

	// EncodeDuration tracks wall time of encode jobs.
	EncodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "myth2dsv_encode_duration_seconds",
		Help:    "Duration of encode jobs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2.3h
	}, []string{"result"})

	procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myth2dsv_proc_terminate_total",
		Help: "Signals sent to encoder process groups by outcome",
	}, []string{"signal", "outcome"})

	procWait = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "myth2dsv_proc_wait_total",
		Help: "Encoder process exits observed after termination",
	}, []string{"outcome"})
)

// IncProcTerminate records a termination signal attempt.
func IncProcTerminate(signal, outcome string) {
	procTerminate.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a terminated process exited.
func IncProcWait(outcome string) {
	procWait.WithLabelValues(outcome).Inc()
}
