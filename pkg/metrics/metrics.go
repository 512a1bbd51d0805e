package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistryMutations counts registry operations by action (add|update|delete|reorder|import|clear)
	// and result (success|rejected|persist_error).
	RegistryMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqldesk_registry_mutations_total",
			Help: "Total number of connection registry mutations",
		},
		[]string{"action", "result"},
	)

	// Connections tracks the number of stored connections per database type.
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sqldesk_connections",
			Help: "Number of stored connections by database type",
		},
		[]string{"type"},
	)

	// Snapshots counts snapshot job runs by result (success|failure).
	Snapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqldesk_snapshots_total",
			Help: "Total number of registry snapshots taken",
		},
		[]string{"result"},
	)

	// RealtimeClients tracks open realtime websocket connections.
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqldesk_realtime_clients",
			Help: "Number of connected realtime clients",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqldesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
