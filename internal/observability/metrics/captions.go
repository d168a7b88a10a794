// Package metrics provides Prometheus collectors for the captions pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result kinds used as label values.
const (
	ResultFinal   = "final"
	ResultPartial = "partial"
)

// CaptionMetrics covers the recognition loop and the result dispatcher.
type CaptionMetrics struct {
	registry *prometheus.Registry

	framesTotal         prometheus.Counter
	acceptDuration      prometheus.Histogram
	resultsTotal        *prometheus.CounterVec
	partialsSuppressed  prometheus.Counter
	loopFailuresTotal   *prometheus.CounterVec
	sessionsTotal       *prometheus.CounterVec
	sessionRunning      prometheus.Gauge
	dispatchQueueDepth  prometheus.Gauge
	dispatchDelivered   prometheus.Counter
	consumerErrorsTotal *prometheus.CounterVec
}

// NewCaptionMetrics creates and registers caption metrics
func NewCaptionMetrics(registry *prometheus.Registry) (*CaptionMetrics, error) {
	m := &CaptionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *CaptionMetrics) initMetrics() {
	m.framesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "captions_frames_total",
		Help: "Audio chunks fed to the recognizer",
	})

	m.acceptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "captions_accept_duration_seconds",
		Help:    "Time the recognizer spent accepting one chunk",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	m.resultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "captions_results_total",
		Help: "Recognition events emitted, by kind",
	}, []string{"kind"})

	m.partialsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "captions_partials_suppressed_total",
		Help: "Partial results fetched but dropped because the text was empty",
	})

	m.loopFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "captions_loop_failures_total",
		Help: "Recognition loops terminated by an error, by error category",
	}, []string{"category"})

	m.sessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "captions_sessions_total",
		Help: "Finished sessions, by end reason",
	}, []string{"reason"})

	m.sessionRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "captions_session_running",
		Help: "1 while a recognition loop is running",
	})

	m.dispatchQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "captions_dispatch_queue_depth",
		Help: "Events waiting for delivery to consumers",
	})

	m.dispatchDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "captions_dispatch_delivered_total",
		Help: "Events delivered to consumers",
	})

	m.consumerErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "captions_consumer_errors_total",
		Help: "Consumer errors and recovered panics, by consumer",
	}, []string{"consumer"})
}

// RecordFrame records one accepted chunk and how long the engine took.
func (m *CaptionMetrics) RecordFrame(duration time.Duration) {
	m.framesTotal.Inc()
	m.acceptDuration.Observe(duration.Seconds())
}

// RecordResult records an emitted final or partial result.
func (m *CaptionMetrics) RecordResult(kind string) {
	m.resultsTotal.WithLabelValues(kind).Inc()
}

// RecordSuppressedPartial records a partial dropped for empty text.
func (m *CaptionMetrics) RecordSuppressedPartial() {
	m.partialsSuppressed.Inc()
}

// RecordLoopFailure records a loop-fatal error.
func (m *CaptionMetrics) RecordLoopFailure(category string) {
	m.loopFailuresTotal.WithLabelValues(category).Inc()
}

// RecordSessionEnd records a finished session.
func (m *CaptionMetrics) RecordSessionEnd(reason string) {
	m.sessionsTotal.WithLabelValues(reason).Inc()
}

// SetSessionRunning updates the running gauge.
func (m *CaptionMetrics) SetSessionRunning(running bool) {
	if running {
		m.sessionRunning.Set(1)
		return
	}
	m.sessionRunning.Set(0)
}

// SetQueueDepth updates the dispatcher queue depth.
func (m *CaptionMetrics) SetQueueDepth(depth int) {
	m.dispatchQueueDepth.Set(float64(depth))
}

// RecordDelivered records one event delivered to all consumers.
func (m *CaptionMetrics) RecordDelivered() {
	m.dispatchDelivered.Inc()
}

// RecordConsumerError records a consumer error or panic.
func (m *CaptionMetrics) RecordConsumerError(consumer string) {
	m.consumerErrorsTotal.WithLabelValues(consumer).Inc()
}

// Describe implements prometheus.Collector
func (m *CaptionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.framesTotal.Describe(ch)
	m.acceptDuration.Describe(ch)
	m.resultsTotal.Describe(ch)
	m.partialsSuppressed.Describe(ch)
	m.loopFailuresTotal.Describe(ch)
	m.sessionsTotal.Describe(ch)
	m.sessionRunning.Describe(ch)
	m.dispatchQueueDepth.Describe(ch)
	m.dispatchDelivered.Describe(ch)
	m.consumerErrorsTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *CaptionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.framesTotal.Collect(ch)
	m.acceptDuration.Collect(ch)
	m.resultsTotal.Collect(ch)
	m.partialsSuppressed.Collect(ch)
	m.loopFailuresTotal.Collect(ch)
	m.sessionsTotal.Collect(ch)
	m.sessionRunning.Collect(ch)
	m.dispatchQueueDepth.Collect(ch)
	m.dispatchDelivered.Collect(ch)
	m.consumerErrorsTotal.Collect(ch)
}
