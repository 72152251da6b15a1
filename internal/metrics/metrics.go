package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics on a private registry.
type Metrics struct {
	FramesCaptured prometheus.Counter
	CameraErrors   prometheus.Counter
	Predictions    *prometheus.CounterVec
	Detections     prometheus.Counter
	InferenceTime  prometheus.Histogram
	ActiveStreams  prometheus.Gauge
	EventsRecorded prometheus.Counter
	ModelReloads   *prometheus.CounterVec
	StreamedFrames prometheus.Counter

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falldetector_frames_captured_total",
			Help: "Frames read from the camera",
		}),
		CameraErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falldetector_camera_errors_total",
			Help: "Camera open or read failures",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "falldetector_predictions_total",
			Help: "Single-shot predictions by result",
		}, []string{"result"}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falldetector_detections_total",
			Help: "Boxes produced by the detection network",
		}),
		InferenceTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "falldetector_inference_seconds",
			Help:    "Time spent in the detection network",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "falldetector_active_streams",
			Help: "Open /video_feed responses",
		}),
		EventsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falldetector_events_recorded_total",
			Help: "Detection events queued for storage",
		}),
		ModelReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "falldetector_model_reloads_total",
			Help: "Model reload attempts by outcome",
		}, []string{"outcome"}),
		StreamedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "falldetector_streamed_frames_total",
			Help: "JPEG parts written to stream clients",
		}),
	}

	m.registry.MustRegister(
		m.FramesCaptured,
		m.CameraErrors,
		m.Predictions,
		m.Detections,
		m.InferenceTime,
		m.ActiveStreams,
		m.EventsRecorded,
		m.ModelReloads,
		m.StreamedFrames,
		prometheus.NewGoCollector(),
	)

	return m
}

// ObserveInference records one network pass.
func (m *Metrics) ObserveInference(d time.Duration, boxes int) {
	m.InferenceTime.Observe(d.Seconds())
	m.Detections.Add(float64(boxes))
}

// ObserveReload records the outcome of a model reload.
func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.ModelReloads.WithLabelValues("error").Inc()
		return
	}
	m.ModelReloads.WithLabelValues("ok").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
