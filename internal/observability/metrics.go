package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirp_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CacheRequests counts cache lookups by cache and result (hit, miss, error).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_cache_requests_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})

	// ActiveWebSockets is the gauge of open real-time connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chirp_websocket_connections_active",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts events delivered to sockets by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// EventsPublished counts outbound events by type and transport.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_events_published_total",
		Help: "Outbound real-time events by type and transport",
	}, []string{"event_type", "transport"})

	// EventsDropped counts outbound events that never reached a transport.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_events_dropped_total",
		Help: "Outbound real-time events dropped by reason",
	}, []string{"reason"})

	// InteractionToggles counts like/retweet toggles by kind and resulting state.
	InteractionToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_interaction_toggles_total",
		Help: "Like and retweet toggles by kind and resulting state",
	}, []string{"kind", "state"})

	// PollVotes counts vote attempts by outcome.
	PollVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_poll_votes_total",
		Help: "Poll vote attempts by outcome",
	}, []string{"outcome"})

	// CounterDriftRepaired counts posts whose stored counters disagreed with a recount.
	CounterDriftRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chirp_counter_drift_repaired_total",
		Help: "Posts whose denormalized counters were corrected by reconciliation",
	})

	// SchedulerJobRuns counts scheduled job executions by job and status.
	SchedulerJobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_scheduler_job_runs_total",
		Help: "Scheduled job executions by job and status",
	}, []string{"job", "status"})

	// MediaUploads counts accepted uploads by kind.
	MediaUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_media_uploads_total",
		Help: "Accepted media uploads by kind",
	}, []string{"kind"})
)

// DatabaseMetrics records query latency for one repository.
type DatabaseMetrics struct {
	table string
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance for table.
func NewDatabaseMetrics(table string) *DatabaseMetrics {
	return &DatabaseMetrics{table: table}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, m.table).Observe(time.Since(start).Seconds())
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, start)
	}
}
