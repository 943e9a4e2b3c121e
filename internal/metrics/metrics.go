package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPRequestSize       prometheus.HistogramVec
	HTTPResponseSize      prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec

	// Redis metrics
	RedisOperationDuration prometheus.HistogramVec
	RedisOperationsTotal   prometheus.CounterVec

	// Real-time metrics
	WSConnectionsActive    prometheus.Gauge
	WSConnectionsTotal     prometheus.Counter
	WSUsersOnline          prometheus.Gauge
	WSEventsPublished      prometheus.CounterVec
	WSClientsDropped       prometheus.Counter
	PresenceTransitions    prometheus.CounterVec
	DirectMessagesTotal    prometheus.CounterVec
	NotificationsTotal     prometheus.CounterVec
	NotificationQueueDepth prometheus.Gauge
	NotificationsPruned    prometheus.Counter
	RelayMessagesTotal     prometheus.CounterVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_size_bytes",
					Help:    "HTTP request body size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path"},
			),
			HTTPResponseSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			// Rate limiting metrics
			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			// Redis metrics
			RedisOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "redis_operation_duration_seconds",
					Help:    "Redis operation latency in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
				},
				[]string{"operation"},
			),
			RedisOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "redis_operations_total",
					Help: "Total number of Redis operations",
				},
				[]string{"operation", "status"},
			),

			// Real-time metrics
			WSConnectionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ws_connections_active",
					Help: "Number of open real-time connections",
				},
			),
			WSConnectionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ws_connections_total",
					Help: "Total number of accepted real-time connections",
				},
			),
			WSUsersOnline: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "ws_users_online",
					Help: "Number of distinct users with at least one open connection",
				},
			),
			WSEventsPublished: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ws_events_published_total",
					Help: "Events enqueued to client connections by type",
				},
				[]string{"type"},
			),
			WSClientsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "ws_clients_dropped_total",
					Help: "Connections closed because their send buffer was full",
				},
			),
			PresenceTransitions: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "presence_transitions_total",
					Help: "Online/offline transitions of user presence",
				},
				[]string{"state"},
			),
			DirectMessagesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "direct_messages_total",
					Help: "Direct message send attempts by outcome",
				},
				[]string{"status"},
			),
			NotificationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "notifications_total",
					Help: "Notification deliveries by kind and outcome",
				},
				[]string{"kind", "status"},
			),
			NotificationQueueDepth: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "notification_queue_depth",
					Help: "Notifications waiting for a worker",
				},
			),
			NotificationsPruned: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "notifications_pruned_total",
					Help: "Read notifications removed by the retention job",
				},
			),
			RelayMessagesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_messages_total",
					Help: "Cross-instance relay traffic",
				},
				[]string{"direction"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}
