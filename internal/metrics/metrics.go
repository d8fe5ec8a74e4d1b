package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds detection pipeline counters and their Prometheus collectors.
type Metrics struct {
	// Detection loop
	Inferences      atomic.Uint64
	InferenceErrors atomic.Uint64
	SkippedTicks    atomic.Uint64 // Ticks where the frame time had not changed
	Detections      atomic.Uint64

	// Capture
	CameraSwitches atomic.Uint64
	CaptureErrors  atomic.Uint64

	// Viewers
	ActiveViewers   atomic.Int64
	FramesBroadcast atomic.Uint64
	FramesDropped   atomic.Uint64

	inferenceLatency prometheus.Histogram
	registry         *prometheus.Registry
}

// New creates a new Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferenceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "detector_inference_duration_seconds",
			Help:    "Duration of one video frame inference",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.inferenceLatency)

	counters := []struct {
		name  string
		help  string
		value *atomic.Uint64
	}{
		{"detector_inferences_total", "Total video frames sent to the detector", &m.Inferences},
		{"detector_inference_errors_total", "Total failed inference calls", &m.InferenceErrors},
		{"detector_skipped_ticks_total", "Total loop ticks without a new frame", &m.SkippedTicks},
		{"detector_detections_total", "Total objects reported above the score threshold", &m.Detections},
		{"capture_camera_switches_total", "Total capture sessions opened", &m.CameraSwitches},
		{"capture_errors_total", "Total failed stream negotiations", &m.CaptureErrors},
		{"viewer_frames_broadcast_total", "Total annotated frames sent to viewers", &m.FramesBroadcast},
		{"viewer_frames_dropped_total", "Total annotated frames dropped because the hub was busy", &m.FramesDropped},
	}
	for _, c := range counters {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "viewer_active_connections",
			Help: "Number of connected WebSocket viewers",
		},
		func() float64 { return float64(m.ActiveViewers.Load()) },
	))
}

// ObserveInference records one inference duration.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.inferenceLatency.Observe(d.Seconds())
}

// Handler returns the HTTP handler for the Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
