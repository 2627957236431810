// Package observability provides metrics and tracing.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BroadcastEvents counts events handed to the broadcast transport by topic.
	BroadcastEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_broadcast_events_total",
		Help: "Total number of broadcast events published",
	}, []string{"topic"})

	// BroadcastFailures counts publish attempts that did not reach the transport.
	BroadcastFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_broadcast_failures_total",
		Help: "Total number of broadcast publish failures",
	}, []string{"topic"})

	// WebSocketConnections is the gauge of open subscriber connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsefeed_websocket_connections",
		Help: "Number of active WebSocket subscriber connections",
	})

	// WebSocketBackpressureDrops counts frames dropped because a client could not keep up.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// RedisErrors counts Redis errors by command.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// ImageCleanupFailures counts image artifacts that could not be removed.
	ImageCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsefeed_image_cleanup_failures_total",
		Help: "Total number of image artifacts that failed to be removed",
	})
)
