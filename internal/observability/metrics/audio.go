package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AudioMetrics covers capture backends and frame conversion.
type AudioMetrics struct {
	registry *prometheus.Registry

	readsTotal       *prometheus.CounterVec
	readDuration     *prometheus.HistogramVec
	readErrorsTotal  *prometheus.CounterVec
	overflowsTotal   *prometheus.CounterVec
	clippedSamples   prometheus.Counter
	deviceOpensTotal *prometheus.CounterVec
}

// NewAudioMetrics creates and registers audio metrics
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AudioMetrics) initMetrics() {
	m.readsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_reads_total",
		Help: "Chunk reads served by a capture backend",
	}, []string{"backend"})

	m.readDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audio_read_duration_seconds",
		Help:    "Time spent blocked waiting for a chunk",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"backend"})

	m.readErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_read_errors_total",
		Help: "Failed chunk reads, by backend and reason",
	}, []string{"backend", "reason"})

	m.overflowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_capture_overflows_total",
		Help: "Captured bytes dropped because the buffer was full",
	}, []string{"backend"})

	m.clippedSamples = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audio_clipped_samples_total",
		Help: "Samples outside [-1, 1] clamped during PCM conversion",
	})

	m.deviceOpensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_device_opens_total",
		Help: "Device open attempts, by backend and status",
	}, []string{"backend", "status"})
}

// RecordRead records a successful chunk read.
func (m *AudioMetrics) RecordRead(backend string, duration time.Duration) {
	m.readsTotal.WithLabelValues(backend).Inc()
	m.readDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordReadError records a failed read.
func (m *AudioMetrics) RecordReadError(backend, reason string) {
	m.readErrorsTotal.WithLabelValues(backend, reason).Inc()
}

// RecordOverflow records bytes dropped by a capture callback.
func (m *AudioMetrics) RecordOverflow(backend string, bytes int) {
	m.overflowsTotal.WithLabelValues(backend).Add(float64(bytes))
}

// RecordClipped records clamped samples.
func (m *AudioMetrics) RecordClipped(count int) {
	if count > 0 {
		m.clippedSamples.Add(float64(count))
	}
}

// RecordDeviceOpen records a device open attempt.
func (m *AudioMetrics) RecordDeviceOpen(backend string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.deviceOpensTotal.WithLabelValues(backend, status).Inc()
}

// Describe implements prometheus.Collector
func (m *AudioMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.readsTotal.Describe(ch)
	m.readDuration.Describe(ch)
	m.readErrorsTotal.Describe(ch)
	m.overflowsTotal.Describe(ch)
	m.clippedSamples.Describe(ch)
	m.deviceOpensTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *AudioMetrics) Collect(ch chan<- prometheus.Metric) {
	m.readsTotal.Collect(ch)
	m.readDuration.Collect(ch)
	m.readErrorsTotal.Collect(ch)
	m.overflowsTotal.Collect(ch)
	m.clippedSamples.Collect(ch)
	m.deviceOpensTotal.Collect(ch)
}
