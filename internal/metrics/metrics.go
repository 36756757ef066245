// Package metrics exposes the bridge's internal counters/gauges via
// prometheus/client_golang, the library Edholm-qbit-service reaches for
// (promauto.NewCounter) rather than hand-rolled stats. The collectors are
// registered and served by Handler, but no other package updates them, so
// a scrape reports their zero values.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsLive is the current size of the unified live item set.
	ItemsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlbridge_items_live",
		Help: "Number of items currently in the unified live plane.",
	})

	// WSSubscribers is the current number of connected WebSocket subscribers.
	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlbridge_ws_subscribers",
		Help: "Number of connected WebSocket subscribers.",
	})

	// BackendCalls counts calls made to each back-end, by client and outcome.
	BackendCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlbridge_backend_calls_total",
		Help: "Calls issued to a back-end engine.",
	}, []string{"client", "outcome"})

	// NotifyDispatches counts outbound notification attempts, by path and outcome.
	NotifyDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlbridge_notify_dispatches_total",
		Help: "Outbound Apprise/script notification attempts.",
	}, []string{"path", "outcome"})

	// CategorySyncDuration observes how long each category reconcile takes.
	CategorySyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "dlbridge_category_sync_seconds",
		Help: "Duration of a category reconcile cycle.",
	})
)

// Handler returns the standard Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
