// Package observability provides Prometheus metrics for the captions pipeline.
// Error telemetry is handled in the telemetry package.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Captions *metrics.CaptionMetrics
	Audio    *metrics.AudioMetrics
	Outputs  *metrics.OutputMetrics
}

// NewMetrics creates a private registry with every collector registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	captionMetrics, err := metrics.NewCaptionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create caption metrics: %w", err)
	}

	audioMetrics, err := metrics.NewAudioMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio metrics: %w", err)
	}

	outputMetrics, err := metrics.NewOutputMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create output metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Captions: captionMetrics,
		Audio:    audioMetrics,
		Outputs:  outputMetrics,
	}, nil
}

// Registry exposes the registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{log: logger.Global().Module("metrics")},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger adapts Logger to promhttp's Println logger.
type promLogger struct {
	log logger.Logger
}

func (p promLogger) Println(v ...any) {
	p.log.Warn(fmt.Sprint(v...))
}
