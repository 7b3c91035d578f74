package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains the Prometheus metrics for the scope loop. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Loop metrics
	FramesProcessed prometheus.Counter
	FrameDuration   prometheus.Histogram
	ProcessDuration prometheus.Histogram

	// Capture metrics
	InputOverflows prometheus.Counter
	FramesDropped  prometheus.Counter

	// Sink metrics
	SinkErrors    *prometheus.CounterVec
	ChunksWritten prometheus.Counter
}

// NewMetrics creates the metrics on a fresh registry so several instances can
// coexist (tests, repeated runs).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "micscope_frames_processed_total",
			Help: "Total number of frames read, transformed and rendered",
		}),
		FrameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "micscope_frame_duration_seconds",
			Help:    "Wall time of one read/transform/render cycle",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 8), // 5ms to ~640ms
		}),
		ProcessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "micscope_process_duration_seconds",
			Help:    "Time spent decoding and transforming one chunk",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 10), // 50us to ~25ms
		}),

		InputOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "micscope_input_overflows_total",
			Help: "Total number of suppressed input overflows",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "micscope_frames_dropped_total",
			Help: "Total number of captured chunks overwritten before rendering",
		}),

		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "micscope_sink_errors_total",
			Help: "Total number of frame sink failures",
		}, []string{"sink"}),
		ChunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "micscope_recorded_chunks_total",
			Help: "Total number of raw chunks written to the recording",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFrame records one completed cycle.
func (m *Metrics) RecordFrame(frameSeconds, processSeconds float64) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	m.FrameDuration.Observe(frameSeconds)
	m.ProcessDuration.Observe(processSeconds)
}

// RecordOverflow increments the overflow counter.
func (m *Metrics) RecordOverflow() {
	if m == nil {
		return
	}
	m.InputOverflows.Inc()
}

// RecordDropped adds n overwritten chunks.
func (m *Metrics) RecordDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.FramesDropped.Add(float64(n))
}

// RecordSinkError increments the error counter for the named sink.
func (m *Metrics) RecordSinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordChunkWritten increments the recorded chunk counter.
func (m *Metrics) RecordChunkWritten() {
	if m == nil {
		return
	}
	m.ChunksWritten.Inc()
}
