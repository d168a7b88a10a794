package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutputMetrics covers caption publishers and the transcript store.
type OutputMetrics struct {
	registry *prometheus.Registry

	publishTotal     *prometheus.CounterVec
	publishDuration  *prometheus.HistogramVec
	subscribersGauge *prometheus.GaugeVec
	droppedTotal     *prometheus.CounterVec
}

// NewOutputMetrics creates and registers output metrics
func NewOutputMetrics(registry *prometheus.Registry) (*OutputMetrics, error) {
	m := &OutputMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *OutputMetrics) initMetrics() {
	m.publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "output_publish_total",
		Help: "Captions handed to an output, by output and status",
	}, []string{"output", "status"})

	m.publishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "output_publish_duration_seconds",
		Help:    "Time an output took to accept a caption",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"output"})

	m.subscribersGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "output_subscribers",
		Help: "Connected live subscribers, by transport",
	}, []string{"transport"})

	m.droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "output_dropped_total",
		Help: "Captions dropped for slow subscribers, by transport",
	}, []string{"transport"})
}

// RecordPublish records a publish attempt and its duration.
func (m *OutputMetrics) RecordPublish(output string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.publishTotal.WithLabelValues(output, status).Inc()
	m.publishDuration.WithLabelValues(output).Observe(duration.Seconds())
}

// SetSubscribers sets the live subscriber count for a transport.
func (m *OutputMetrics) SetSubscribers(transport string, count int) {
	m.subscribersGauge.WithLabelValues(transport).Set(float64(count))
}

// RecordDropped records a caption dropped for a slow subscriber.
func (m *OutputMetrics) RecordDropped(transport string) {
	m.droppedTotal.WithLabelValues(transport).Inc()
}

// Describe implements prometheus.Collector
func (m *OutputMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.publishTotal.Describe(ch)
	m.publishDuration.Describe(ch)
	m.subscribersGauge.Describe(ch)
	m.droppedTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *OutputMetrics) Collect(ch chan<- prometheus.Metric) {
	m.publishTotal.Collect(ch)
	m.publishDuration.Collect(ch)
	m.subscribersGauge.Collect(ch)
	m.droppedTotal.Collect(ch)
}
