package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlog_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatlog_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Store metrics
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatlog_store_operation_duration_seconds",
			Help:    "Conversation store operation duration",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"op"},
	)

	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlog_store_operation_errors_total",
			Help: "Total failed conversation store operations",
		},
		[]string{"op"},
	)

	// Business metrics
	ConversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlog_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlog_messages_appended_total",
			Help: "Total user messages appended",
		},
		[]string{"msgtype"},
	)

	MessagesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlog_messages_discarded_total",
			Help: "Total messages discarded by branch truncation",
		},
	)

	// Infrastructure metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlog_cache_lookups_total",
			Help: "Conversation list cache lookups",
		},
		[]string{"result"}, // "hit", "miss" or "error"
	)

	UpdateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlog_update_conflicts_total",
			Help: "Optimistic update attempts rejected by a concurrent writer",
		},
	)
)
