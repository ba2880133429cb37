// Package metrics holds the Prometheus instrumentation for the drawing
// server's tick loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the dispatcher updates.
type Metrics struct {
	ConnectionsWaiting   prometheus.Gauge
	ConnectionsConnected prometheus.Gauge
	HandshakeFailures    *prometheus.CounterVec
	AuthFailures         *prometheus.CounterVec
	RequestsHandled      *prometheus.CounterVec
	CatalogRebuilds      *prometheus.CounterVec
	SendQueueDepth       prometheus.Gauge
	TickDuration         prometheus.Histogram
	HeartbeatsSent       prometheus.Counter
	ConnectionsPruned    *prometheus.CounterVec
}

// New builds and registers every collector.
func New() *Metrics {
	return &Metrics{
		ConnectionsWaiting: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drawserver_connections_waiting",
			Help: "Connections that have completed steps 1-4 of the handshake and are awaiting step 5.",
		}),
		ConnectionsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drawserver_connections_connected",
			Help: "Fully authenticated, live connections.",
		}),
		HandshakeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drawserver_handshake_failures_total",
			Help: "Handshake attempts that failed steps 1-4.",
		}, []string{"reason"}),
		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drawserver_auth_failures_total",
			Help: "Step-5 authentication attempts that failed.",
		}, []string{"mode"}),
		RequestsHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drawserver_requests_handled_total",
			Help: "Requests routed by RequestKind.",
		}, []string{"kind"}),
		CatalogRebuilds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drawserver_catalog_rebuilds_total",
			Help: "Catalog Source() rebuilds triggered by a dirty flag.",
		}, []string{"kind"}),
		SendQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drawserver_send_queue_depth",
			Help: "Messages waiting in the send queue at the start of the drain step.",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "drawserver_tick_duration_seconds",
			Help:    "Wall-clock time spent in one server tick.",
			Buckets: prometheus.DefBuckets,
		}),
		HeartbeatsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drawserver_heartbeats_sent_total",
			Help: "Heartbeat frames sent across all connections.",
		}),
		ConnectionsPruned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drawserver_connections_pruned_total",
			Help: "Connections removed by the tick loop.",
		}, []string{"reason"}),
	}
}
