package observability

import (
	"sync"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sccompanion_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sccompanion_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CacheLookups counts cache hits and misses per cache name.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sccompanion_cache_lookups_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})

	// SocialActions counts follow, friend, like and post actions by outcome.
	SocialActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sccompanion_social_actions_total",
		Help: "Social actions by type and outcome",
	}, []string{"action", "outcome"})

	// XPAwarded sums XP granted by reason.
	XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sccompanion_xp_awarded_total",
		Help: "Experience points awarded by reason",
	}, []string{"reason"})

	// EventsPublished counts domain events sent to the broker.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sccompanion_events_published_total",
		Help: "Domain events published by type and outcome",
	}, []string{"event_type", "outcome"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sccompanion_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to slow clients.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sccompanion_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RecordSocialAction counts one social action. A nil err is "ok".
func RecordSocialAction(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SocialActions.WithLabelValues(action, outcome).Inc()
}

// RecordCacheLookup counts a hit or a miss for the named cache.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *fiberprometheus.FiberPrometheus
)

// HTTPMetrics returns the process-wide fiber request metrics. The collectors
// register on the default registry, so they are built once.
func HTTPMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	httpMetricsOnce.Do(func() {
		httpMetrics = fiberprometheus.New(serviceName)
	})
	return httpMetrics
}
