// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics
