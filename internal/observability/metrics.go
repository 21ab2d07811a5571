package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_redis_errors_total",
		Help: "Total number of Redis errors by command",
	}, []string{"command"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secmaster_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WorkflowTransitions counts change-request transitions per kind.
	WorkflowTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_workflow_transitions_total",
		Help: "Change request transitions by kind and transition",
	}, []string{"kind", "transition"})

	// WorkflowConflicts counts rejected operations by kind and error code.
	WorkflowConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_workflow_conflicts_total",
		Help: "Workflow operations refused by kind and error code",
	}, []string{"kind", "code"})

	// NotificationsSent counts notification deliveries by event and outcome.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_notifications_total",
		Help: "Notification deliveries by event and outcome",
	}, []string{"event", "outcome"})

	// DirectoryRefreshes counts user directory refreshes by outcome.
	DirectoryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secmaster_user_directory_refresh_total",
		Help: "User directory refreshes by outcome",
	}, []string{"outcome"})

	// DirectorySize is the number of profiles in the last directory snapshot.
	DirectorySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "secmaster_user_directory_profiles",
		Help: "Profiles held in the cached user directory",
	})

	// WebSocketConnections is the gauge of live notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "secmaster_websocket_connections",
		Help: "Number of active notification WebSocket connections",
	})

	// WebSocketDrops counts notification frames dropped because a client was slow.
	WebSocketDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "secmaster_websocket_drops_total",
		Help: "Notification frames dropped due to backpressure",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
