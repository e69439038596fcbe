// Package metrics provides Prometheus metrics for kubeluma (HTTP RED, gateway, loops, fan-out).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kubeluma"

var (
	// HTTPRequestTotal counts requests by method, path, status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// WebSocketConnectionsActive is the current number of connected viewers.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	// WebSocketDroppedTotal counts viewers disconnected because their send buffer was full.
	WebSocketDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_dropped_total",
			Help:      "Total number of viewers dropped for slow consumption.",
		},
	)

	// HubMessagesTotal counts fan-out decisions by message type; result is sent or deduplicated.
	HubMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_messages_total",
			Help:      "Total number of published messages by type and result.",
		},
		[]string{"type", "result"},
	)

	// GatewayRequestDurationSeconds is cluster API latency by operation.
	GatewayRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Cluster API call duration in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"operation"},
	)

	// GatewayErrorsTotal counts failed cluster API calls by operation.
	GatewayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Total number of failed cluster API calls by operation.",
		},
		[]string{"operation"},
	)

	// LoopTicksTotal counts loop iterations by loop and outcome (ok, error, skipped).
	LoopTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_ticks_total",
			Help:      "Total number of refresh loop iterations by loop and outcome.",
		},
		[]string{"loop", "outcome"},
	)

	// LogStreamsActive is the number of running log stream tasks.
	LogStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_streams_active",
			Help:      "Number of active pod/container log streams.",
		},
	)

	// EventBufferSize is the number of events currently retained.
	EventBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_buffer_size",
			Help:      "Number of events held in the rolling buffer.",
		},
	)

	// CircuitBreakerState is 0 closed, 1 open, 2 half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Cluster API circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
		[]string{"context"},
	)

	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions.",
		},
		[]string{"context", "from", "to"},
	)

	CircuitBreakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_failures_total",
			Help:      "Total number of retryable failures counted by the circuit breaker.",
		},
		[]string{"context"},
	)
)
