// Package metrics exposes Prometheus counters for sync, token refresh and
// campaign dispatch.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync metrics
	SyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revwave_sync_runs_total",
			Help: "Total number of tenant sync runs by outcome",
		},
		[]string{"outcome"},
	)

	ReviewsSyncedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revwave_reviews_synced_total",
			Help: "Total number of reviews written by sync, by kind (new, updated)",
		},
		[]string{"kind"},
	)

	SyncEntityErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "revwave_sync_entity_errors_total",
			Help: "Total number of per-location or per-review errors recorded during sync",
		},
	)

	// Token metrics
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revwave_token_refresh_total",
			Help: "Total number of access token refreshes by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// HTTP client metrics
	HTTPRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "revwave_http_retries_total",
			Help: "Total number of retried provider HTTP attempts",
		},
	)

	// Dispatch metrics
	RecipientsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revwave_recipients_total",
			Help: "Total number of campaign recipients reaching a terminal status",
		},
		[]string{"status", "channel"},
	)

	DispatchQueueDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "revwave_dispatch_queue_dropped_total",
			Help: "Total number of dispatch jobs rejected because the queue was full",
		},
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "revwave_dispatch_queue_depth",
			Help: "Number of dispatch jobs waiting in the queue",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SyncRunsTotal,
			ReviewsSyncedTotal,
			SyncEntityErrorsTotal,
			TokenRefreshTotal,
			HTTPRetriesTotal,
			RecipientsTotal,
			DispatchQueueDroppedTotal,
			DispatchQueueDepth,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
