// Package metrics exposes the pipeline's Prometheus instrumentation on the
// default registry. ns-guard mounts Handler() under /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PacketsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_packets_processed_total",
		Help: "Packets pulled from the queue and analyzed",
	})

	PacketsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_packets_dropped_total",
		Help: "Packets dropped because the queue was full or closed",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netsentry_queue_depth",
		Help: "Packets currently waiting in the analysis queue",
	})

	Detections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_detections_total",
		Help: "Detections emitted, by detector",
	}, []string{"detector"})

	DetectorTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_detector_timeouts_total",
		Help: "Analyses where a detector missed the fan-in deadline",
	}, []string{"detector"})

	DetectorPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netsentry_detector_panics_total",
		Help: "Recovered detector panics",
	}, []string{"detector"})

	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_alerts_created_total",
		Help: "Alerts created by the sink",
	})

	AlertsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_alerts_deduplicated_total",
		Help: "Detections folded into an existing alert inside the dedup window",
	})

	PersistErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_persist_errors_total",
		Help: "Alert and snapshot writes that ultimately failed",
	})

	PersistDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_persist_dropped_total",
		Help: "Alerts dropped from the persistence queue because it was full",
	})

	SnapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netsentry_snapshots_written_total",
		Help: "Traffic stats snapshots flushed to the store",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
