package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsDiscovered tracks newly created items per channel
	ItemsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_items_discovered_total",
			Help: "Total number of newly discovered items",
		},
		[]string{"channel"},
	)

	// ItemsProcessed tracks summarization outcomes
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_items_processed_total",
			Help: "Total number of summarization attempts by result",
		},
		[]string{"result"},
	)

	// PollCycleDuration tracks the duration of one full poll cycle
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chanwatch_poll_cycle_seconds",
			Help:    "Duration of one poll cycle over all channels",
			Buckets: prometheus.DefBuckets,
		},
	)

	// FeedFetchErrors tracks feed fetch failures by kind
	FeedFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_feed_fetch_errors_total",
			Help: "Total number of feed fetch errors",
		},
		[]string{"kind"},
	)

	// NotificationsSent tracks per-message delivery tickets
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_notifications_sent_total",
			Help: "Total number of delivery tickets by status",
		},
		[]string{"status"},
	)

	// PushRetryDepth tracks the current size of the push retry queue
	PushRetryDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chanwatch_push_retry_depth",
			Help: "Current number of entries in the push retry queue",
		},
	)

	// PushRetries tracks retry queue outcomes
	PushRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_push_retries_total",
			Help: "Total number of push retry outcomes",
		},
		[]string{"outcome"},
	)

	// TokensRemoved tracks token removals by classifier action
	TokensRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chanwatch_tokens_removed_total",
			Help: "Total number of tokens deleted or deactivated",
		},
		[]string{"action"},
	)

	// DBConnectionPoolUsage tracks database pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chanwatch_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
