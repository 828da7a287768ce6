// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuechat_backend_requests_total",
			Help: "Total number of requests sent to the marketplace backend.",
		},
		[]string{"op", "status"},
	)
	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venuechat_backend_request_duration_seconds",
			Help:    "Backend request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	realtimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuechat_realtime_events_total",
			Help: "Total number of realtime socket events.",
		},
		[]string{"direction", "event"},
	)
	realtimeReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "venuechat_realtime_reconnects_total",
			Help: "Total number of realtime dial attempts after the first.",
		},
	)
	realtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "venuechat_realtime_connections",
			Help: "Number of open realtime sockets to the backend.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "venuechat_sessions_active",
			Help: "Number of live chat sessions.",
		},
	)
	browserConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "venuechat_browser_ws_connections",
			Help: "Number of open browser websocket connections.",
		},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuechat_messages_sent_total",
			Help: "Total number of messages sent, by result.",
		},
		[]string{"result"},
	)
	requestsThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venuechat_requests_throttled_total",
			Help: "Total number of chat requests rejected by the request limiter.",
		},
		[]string{"key"},
	)
)

func init() {
	prometheus.MustRegister(
		backendRequestsTotal,
		backendRequestDuration,
		realtimeEventsTotal,
		realtimeReconnectsTotal,
		realtimeConnections,
		sessionsActive,
		browserConnections,
		messagesSentTotal,
		requestsThrottledTotal,
	)
}

// ObserveBackend records one backend call. status is 0 on transport errors.
func ObserveBackend(op string, status int, started time.Time) {
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	backendRequestsTotal.WithLabelValues(op, label).Inc()
	backendRequestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func IncRealtimeEvent(direction, event string) {
	realtimeEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncRealtimeReconnect() {
	realtimeReconnectsTotal.Inc()
}

func IncRealtimeConn() { realtimeConnections.Inc() }
func DecRealtimeConn() { realtimeConnections.Dec() }

func IncSessions() { sessionsActive.Inc() }
func DecSessions() { sessionsActive.Dec() }

func IncBrowserConn() { browserConnections.Inc() }
func DecBrowserConn() { browserConnections.Dec() }

func IncMessageSent(result string) {
	messagesSentTotal.WithLabelValues(result).Inc()
}

// IncThrottled counts a rejected request. kind is "user" or "ip".
func IncThrottled(kind string) { requestsThrottledTotal.WithLabelValues(kind).Inc() }
