// Package metrics exposes prometheus instruments for the refresh engine and
// the marketplace fetch pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsChecked counts tracked items whose price was refreshed
	ItemsChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "items_checked_total",
		Help: "Total number of items whose price was refreshed",
	})

	// CheckErrors counts errors encountered during price refresh
	CheckErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_check_errors_total",
		Help: "Total number of errors encountered during price refresh",
	})

	// NotificationsSent counts notifications delivered to users by kind
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Number of notifications delivered by kind",
	}, []string{"kind"})

	// MarketplaceRequests counts fetch attempts by marketplace and result
	MarketplaceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_requests_total",
		Help: "Number of marketplace fetch attempts by result",
	}, []string{"marketplace", "result"})

	// SchedulerRuns counts refresh runs by completion status
	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_total",
		Help: "Number of refresh runs by status",
	}, []string{"status"})

	// RunDuration observes the duration of full refresh runs
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "price_check_duration_seconds",
		Help:    "Duration of the full price refresh cycle",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
