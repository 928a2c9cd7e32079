// Package metrics exposes Prometheus instruments for core operations. The
// HTTP server mounts promhttp at /metrics to scrape them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OpsTotal counts operations by name and outcome status. Status is
	// "ok" or the error code the operation failed with.
	OpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cpc_core_ops_total",
		Help: "Core operations by name and result status.",
	}, []string{"op", "status"})

	// OpDuration observes per-operation latency.
	OpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cpc_core_op_duration_seconds",
		Help:    "Core operation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// Observe records one operation outcome together with its duration.
func Observe(op, status string, start time.Time) {
	OpsTotal.WithLabelValues(op, status).Inc()
	OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
