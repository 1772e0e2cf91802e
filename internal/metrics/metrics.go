package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildtrack_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "buildtrack_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Workflow metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildtrack_messages_posted_total",
			Help: "Total chat messages persisted",
		},
		[]string{"kind"}, // "plain", "edit_suggestion" or "completion_confirmation"
	)

	TaskLinkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildtrack_task_link_failures_total",
			Help: "Confirmations persisted whose task update failed",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildtrack_rate_limit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)

	// Realtime metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buildtrack_ws_active_connections",
			Help: "Open realtime connections",
		},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildtrack_ws_broadcasts_total",
			Help: "Events fanned out to chat rooms",
		},
		[]string{"event"},
	)

	DroppedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildtrack_ws_dropped_connections_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)
)

const (
	KindPlain                  = "plain"
	KindEditSuggestion         = "edit_suggestion"
	KindCompletionConfirmation = "completion_confirmation"
)
