// Package telemetry provides opt-in error reporting to Sentry.
package telemetry

import (
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

// Config controls Sentry reporting.
type Config struct {
	Enabled     bool
	DSN         string
	Environment string
	Release     string
	Debug       bool

	// Transport overrides the HTTP transport, mainly for tests
	Transport sentry.Transport
}

var initialized atomic.Bool

// Init configures the Sentry SDK and registers it as the error reporter.
// It does nothing unless cfg.Enabled is set.
func Init(cfg Config) error {
	log := GetLogger()
	if !cfg.Enabled {
		log.Debug("sentry telemetry is disabled (opt-in required)")
		return nil
	}
	if cfg.DSN == "" {
		return errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	environment := cfg.Environment
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       1.0,
		Debug:            cfg.Debug,
		AttachStacktrace: false,
		Environment:      environment,
		Release:          cfg.Release,
		ServerName:       "",
		Transport:        cfg.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
	})

	home, _ := os.UserHomeDir()
	errors.SetPrivacyScrubber(homeScrubber(home))
	errors.SetTelemetryReporter(newFilteringReporter(errors.NewSentryReporter(true)))
	initialized.Store(true)

	log.Info("sentry telemetry initialized", logger.String("environment", environment))
	return nil
}

// Enabled reports whether Init registered Sentry.
func Enabled() bool {
	return initialized.Load()
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) bool {
	if !initialized.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown flushes and detaches Sentry from the errors package.
func Shutdown(timeout time.Duration) {
	if !initialized.CompareAndSwap(true, false) {
		return
	}
	errors.SetTelemetryReporter(nil)
	errors.SetPrivacyScrubber(nil)
	sentry.Flush(timeout)
}

// homeScrubber replaces the user's home directory with ~, since model,
// recording and database paths usually live under it.
func homeScrubber(home string) errors.PrivacyScrubber {
	home = strings.TrimRight(home, `/\`)
	if home == "" {
		return nil
	}
	return func(message string) string {
		return strings.ReplaceAll(message, home, "~")
	}
}

// applyPrivacyFilters strips host identity from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// GetLogger returns the telemetry module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
