// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glow_jobs_submitted_total",
		Help: "Jobs accepted by the service.",
	})

	BatchesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glow_batches_executed_total",
		Help: "Pipeline batches flushed through the engine.",
	})

	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glow_frames_processed_total",
		Help: "Frames segmented successfully.",
	})

	FrameFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glow_frame_failures_total",
		Help: "Frames that produced a blank placeholder mask.",
	})

	BatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "glow_batch_latency_seconds",
		Help:    "End-to-end latency of one pipeline batch.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glow_queue_depth",
		Help: "Jobs waiting in the priority queue.",
	})

	GraphWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glow_graph_workers",
		Help: "Workers running the captured post-process graph in the last batch.",
	})

	DeviceMemoryUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glow_device_memory_used_bytes",
		Help: "Device memory currently allocated.",
	})
)

// Register installs the /metrics and /health endpoints on mux.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
