package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncVerificationsRecorded()
		m.IncClaims("ok")
		m.ObserveBatch("native", 3)
		m.ObserveOperationLatency("claim", 0.1)
	})
}

func TestCountersRecordLabels(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.IncClaims("ok")
	m.IncClaims("ok")
	m.IncClaims("invalid_proof")
	m.ObserveBatch("token", 200)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Claims.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Claims.WithLabelValues("invalid_proof")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchesSent.WithLabelValues("token")), 0)
}
