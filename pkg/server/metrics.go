package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Connection metrics
	activeConnections        prometheus.Gauge
	authenticatedConnections prometheus.Gauge
	connectionsOpened        prometheus.Counter
	connectionsClosed        prometheus.Counter
	livenessClosed           prometheus.Counter

	// Event metrics
	eventsReceived *prometheus.CounterVec // by event type
	rateLimited    *prometheus.CounterVec // by action

	// Broadcast metrics
	messagesBroadcast prometheus.Counter
	broadcastFanout   prometheus.Histogram
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "boardcast_active_connections",
				Help: "Current number of open connections",
			},
		),
		authenticatedConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "boardcast_authenticated_connections",
				Help: "Current number of authenticated connections",
			},
		),
		connectionsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "boardcast_connections_opened_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "boardcast_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		livenessClosed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "boardcast_liveness_closed_total",
				Help: "Total number of connections closed for missing a liveness probe",
			},
		),
		eventsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardcast_events_received_total",
				Help: "Total number of events received from clients by type",
			},
			[]string{"type"},
		),
		rateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boardcast_rate_limited_total",
				Help: "Total number of actions rejected by the rate limiter",
			},
			[]string{"action"},
		),
		messagesBroadcast: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "boardcast_messages_broadcast_total",
				Help: "Total number of events broadcast (unique events, not deliveries)",
			},
		),
		broadcastFanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "boardcast_broadcast_fanout",
				Help:    "Number of connections that received each broadcast event",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),
	}
}

// RecordActiveConnections updates the open connection gauge
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordAuthenticatedConnections updates the presence gauge
func (m *Metrics) RecordAuthenticatedConnections(count int) {
	m.authenticatedConnections.Set(float64(count))
}

// RecordConnectionOpened increments the accepted-connection counter
func (m *Metrics) RecordConnectionOpened() {
	m.connectionsOpened.Inc()
}

// RecordConnectionClosed increments the closed-connection counter
func (m *Metrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// RecordLivenessClose increments the probe-miss counter
func (m *Metrics) RecordLivenessClose() {
	m.livenessClosed.Inc()
}

// RecordEventReceived increments the event counter for a type
func (m *Metrics) RecordEventReceived(eventType string) {
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

// RecordRateLimited increments the rejection counter for an action
func (m *Metrics) RecordRateLimited(action string) {
	m.rateLimited.WithLabelValues(action).Inc()
}

// RecordBroadcast records one broadcast and its delivery fanout
func (m *Metrics) RecordBroadcast(delivered int) {
	m.messagesBroadcast.Inc()
	m.broadcastFanout.Observe(float64(delivered))
}
