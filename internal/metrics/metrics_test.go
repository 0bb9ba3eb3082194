// SPDX-License-Identifier: MIT

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestIncBackendRequest_Labels(t *testing.T) {
	okBefore := counterValue(t, BackendRequests.WithLabelValues("list", "success"))
	errBefore := counterValue(t, BackendRequests.WithLabelValues("list", "error"))

	IncBackendRequest("list", nil)
	IncBackendRequest("list", errors.New("boom"))
	IncBackendRequest("list", errors.New("boom"))

	require.Equal(t, okBefore+1, counterValue(t, BackendRequests.WithLabelValues("list", "success")))
	require.Equal(t, errBefore+2, counterValue(t, BackendRequests.WithLabelValues("list", "error")))
}

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("test", "open")
	require.Equal(t, 1.0, gaugeValue(t, circuitBreakerState.WithLabelValues("test", "open")))
	require.Equal(t, 0.0, gaugeValue(t, circuitBreakerState.WithLabelValues("test", "closed")))

	SetCircuitBreakerState("test", "closed")
	require.Equal(t, 0.0, gaugeValue(t, circuitBreakerState.WithLabelValues("test", "open")))
	require.Equal(t, 1.0, gaugeValue(t, circuitBreakerState.WithLabelValues("test", "closed")))
}

func TestIncEventDropped_DefaultsKind(t *testing.T) {
	before := counterValue(t, EventsDropped.WithLabelValues("unknown"))
	IncEventDropped("")
	require.Equal(t, before+1, counterValue(t, EventsDropped.WithLabelValues("unknown")))
}
