package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the frame pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// FramesProcessed counts frames that completed inference and had their
	// outputs pushed to the streams.
	FramesProcessed prometheus.Counter
	// FramesSkipped counts frames dropped before producing outputs, labeled
	// by reason ("no_predictor" or "inference_error").
	FramesSkipped *prometheus.CounterVec
	// InferenceSeconds observes per-frame inference latency.
	InferenceSeconds prometheus.Histogram
	// Captures counts single-shot capture outcomes, labeled by result
	// ("ok", "timeout", "busy", "no_image").
	Captures *prometheus.CounterVec
	// StreamDropped counts pushes dropped because a subscriber's buffer was
	// full, labeled by stream name.
	StreamDropped *prometheus.CounterVec
}

// New creates and registers the vision-runner collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vision_frames_processed_total",
			Help: "Number of frames that completed inference.",
		}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_frames_skipped_total",
			Help: "Number of frames skipped before producing outputs.",
		}, []string{"reason"}),
		InferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vision_inference_seconds",
			Help:    "Per-frame inference latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_captures_total",
			Help: "Single-shot frame capture outcomes.",
		}, []string{"result"}),
		StreamDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vision_stream_dropped_total",
			Help: "Stream pushes dropped due to a full subscriber buffer.",
		}, []string{"stream"}),
	}
	registry.MustRegister(
		m.FramesProcessed,
		m.FramesSkipped,
		m.InferenceSeconds,
		m.Captures,
		m.StreamDropped,
	)
	return m
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
