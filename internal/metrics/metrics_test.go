package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// New registers every collector against the default registry, so the
// whole package is exercised through a single instance shared across
// subtests — a second New() call in the same process would panic on
// duplicate registration.
var m = New()

func TestConnectionGaugesTrackSetValues(t *testing.T) {
	m.ConnectionsWaiting.Set(3)
	m.ConnectionsConnected.Set(7)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.ConnectionsWaiting))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.ConnectionsConnected))
}

func TestCounterVecsIncrementByLabel(t *testing.T) {
	m.HandshakeFailures.WithLabelValues("bad_signature").Inc()
	m.HandshakeFailures.WithLabelValues("bad_signature").Inc()
	m.AuthFailures.WithLabelValues("jwt").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HandshakeFailures.WithLabelValues("bad_signature")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuthFailures.WithLabelValues("jwt")))
}

func TestRequestsHandledAndCatalogRebuildsAreLabelledIndependently(t *testing.T) {
	m.RequestsHandled.WithLabelValues("SourceProductTable").Inc()
	m.CatalogRebuilds.WithLabelValues("SourceProductTable").Inc()
	m.CatalogRebuilds.WithLabelValues("SourceProductTable").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsHandled.WithLabelValues("SourceProductTable")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CatalogRebuilds.WithLabelValues("SourceProductTable")))
}

func TestSendQueueDepthAndHeartbeats(t *testing.T) {
	m.SendQueueDepth.Set(12)
	m.HeartbeatsSent.Add(5)

	assert.Equal(t, float64(12), testutil.ToFloat64(m.SendQueueDepth))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.HeartbeatsSent))
}

func TestConnectionsPrunedByReason(t *testing.T) {
	m.ConnectionsPruned.WithLabelValues("heartbeat_timeout").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionsPruned.WithLabelValues("heartbeat_timeout")))
}

func TestTickDurationObserves(t *testing.T) {
	assert.NotPanics(t, func() {
		m.TickDuration.Observe(0.01)
		m.TickDuration.Observe(0.02)
	})
	assert.Equal(t, 1, testutil.CollectAndCount(m.TickDuration), "one histogram collector regardless of sample count")
}
