package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_active_sessions",
			Help: "Sessions currently joined to a room",
		},
	)

	Joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_joins_total",
			Help: "Join attempts by result",
		},
		[]string{"result"}, // "ok", "invalid", "failed"
	)

	Exits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_exits_total",
			Help: "Completed exits",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_messages_sent_total",
			Help: "Messages appended by sessions",
		},
		[]string{"kind"},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_uploads_total",
			Help: "File uploads by result",
		},
		[]string{"result"},
	)

	// Transport metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_ws_connections",
			Help: "Open websocket connections",
		},
	)

	WSDroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_ws_dropped_frames_total",
			Help: "Frames dropped because the client send buffer was full",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_rate_limit_hits_total",
			Help: "Sends rejected by the per-member rate limit",
		},
	)
)
