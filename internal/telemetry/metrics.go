// Package telemetry exposes the server's Prometheus metrics (spec's
// supplemented /health observability), grounded on cuemby-warren's
// pkg/metrics package: package-level collectors registered once in
// init, a Handler for wiring into the HTTP mux.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabhub_active_connections",
		Help: "Number of currently connected WebSocket peers.",
	})

	ActiveHubs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabhub_active_hubs",
		Help: "Number of documents with a loaded in-memory Hub.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabhub_execution_queue_depth",
		Help: "Number of execution jobs waiting to be dequeued.",
	})

	ActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collabhub_execution_active_workers",
		Help: "Number of execution workers currently running a job.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabhub_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		},
		[]string{"route", "status"},
	)

	UpdatesAppliedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collabhub_updates_applied_total",
		Help: "Total CRDT updates appended to the update log across all documents.",
	})

	SnapshotsWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collabhub_snapshots_written_total",
		Help: "Total snapshots successfully written to the snapshot store.",
	})

	RateLimitDeniedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collabhub_rate_limit_denied_total",
		Help: "Total execute requests denied by the rate limiter, including fail-closed denials.",
	})
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		ActiveHubs,
		QueueDepth,
		ActiveWorkers,
		HTTPRequestsTotal,
		UpdatesAppliedTotal,
		SnapshotsWrittenTotal,
		RateLimitDeniedTotal,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
