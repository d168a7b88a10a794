package telemetry

import (
	"github.com/livecaptions/livecaptions/internal/errors"
)

// quietCategories are expected user-facing conditions, not defects.
var quietCategories = map[errors.ErrorCategory]bool{
	errors.CategoryValidation:   true,
	errors.CategoryNotFound:     true,
	errors.CategoryCancellation: true,
	errors.CategoryState:        true,
}

// filteringReporter forwards only errors worth a Sentry event.
type filteringReporter struct {
	next errors.TelemetryReporter
}

func newFilteringReporter(next errors.TelemetryReporter) *filteringReporter {
	return &filteringReporter{next: next}
}

func (r *filteringReporter) IsEnabled() bool {
	return r.next.IsEnabled()
}

func (r *filteringReporter) ReportError(ee *errors.EnhancedError) {
	if quietCategories[ee.Category] && ee.Priority != errors.PriorityCritical {
		return
	}
	r.next.ReportError(ee)
}
