package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results used as the "result" label of DeliveriesTotal.
const (
	ResultDelivered = "delivered"
	ResultOffline   = "offline"
	ResultFailed    = "failed"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	StreamConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_connections_active",
			Help: "Current number of open push connections per transport",
		},
		[]string{"transport"},
	)

	RegistryConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_registry_connections",
			Help: "Connections currently tracked by the registry",
		},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Delivery attempts per user, by envelope kind and outcome",
		},
		[]string{"kind", "result"},
	)

	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_evictions_total",
			Help: "Connections evicted after a failed write",
		},
		[]string{"kind"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_consumed_total",
			Help: "Upstream notification events consumed, by outcome",
		},
		[]string{"result"},
	)

	PresenceTransitionsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_presence_transitions_dropped_total",
			Help: "Presence transitions dropped because the queue was full",
		},
	)
)
