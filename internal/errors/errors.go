// Package errors wraps errors with a component, a category and context so
// callers can branch on the kind of failure and telemetry can group it.
//
//	return errors.New(err).
//		Component("captions").
//		Category(errors.CategoryAudioSource).
//		Context("session_id", id).
//		Build()
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors by what went wrong.
type ErrorCategory string

const (
	CategoryModelLoad      ErrorCategory = "model-loading"
	CategoryRecognition    ErrorCategory = "recognition"
	CategoryValidation     ErrorCategory = "validation"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryFileParsing    ErrorCategory = "file-parsing"
	CategoryNetwork        ErrorCategory = "network"
	CategoryAudio          ErrorCategory = "audio-processing"
	CategoryAudioSource    ErrorCategory = "audio-source"
	CategoryDatabase       ErrorCategory = "database"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryProcessing     ErrorCategory = "processing"
	CategoryState          ErrorCategory = "state"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryCancellation   ErrorCategory = "cancellation"
	CategoryGeneric        ErrorCategory = "generic"
)

// Priorities override the telemetry level derived from the category.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when no component was set or detected.
const ComponentUnknown = "unknown"

const selfPackage = "github.com/livecaptions/livecaptions/internal/errors"

// reporting is set while an enabled telemetry reporter is installed.
// Component detection walks the stack, so it only runs then.
var reporting atomic.Bool

// EnhancedError is an error with its component, category and context.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	mu        sync.RWMutex
	component string
	reported  bool
}

// Error returns the wrapped error's message.
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap returns the wrapped error.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, anything else through the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component that raised the error.
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.component
}

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that telemetry has seen the error.
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	ee.reported = true
	ee.mu.Unlock()
}

// IsReported reports whether MarkReported was called.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts an error wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts an error from a format string. %w wraps as in fmt.Errorf.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the package or subsystem raising the error.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. The last call wins.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets an explicit priority; unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context attaches a key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ModelContext records the model family and language, not the path.
func (eb *ErrorBuilder) ModelContext(modelPath, language string) *ErrorBuilder {
	if modelPath != "" {
		eb.Context("model_kind", modelKind(modelPath))
	}
	if language != "" {
		eb.Context("language", language)
	}
	return eb
}

// FileContext records the file extension and size class, not the path.
func (eb *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	if path != "" {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if ext == "" {
			ext = "none"
		}
		eb.Context("file_extension", ext)
	}
	if size > 0 {
		eb.Context("file_size_class", sizeClass(size))
	}
	return eb
}

// NetworkContext records the endpoint's protocol and the timeout, not the
// address.
func (eb *ErrorBuilder) NetworkContext(endpoint string, timeout time.Duration) *ErrorBuilder {
	if endpoint != "" {
		eb.Context("endpoint_kind", endpointKind(endpoint))
	}
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Build returns the error and hands it to the telemetry reporter, if any.
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New("unspecified error")
	}

	active := reporting.Load()
	component := eb.component
	if component == "" && active {
		component = componentFromStack()
	}
	if component == "" {
		component = ComponentUnknown
	}
	category := eb.category
	if category == "" {
		category = detectCategory(eb.err, component)
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}
	if active {
		reportToTelemetry(ee)
	}
	return ee
}

// componentPrefixes maps package paths under the module to component names.
var componentPrefixes = []struct{ prefix, component string }{
	{"internal/audiocore", "audiocore"},
	{"internal/recognizer", "recognizer"},
	{"internal/captions", "captions"},
	{"internal/events", "events"},
	{"internal/conf", "configuration"},
	{"internal/datastore", "datastore"},
	{"internal/mqtt", "mqtt"},
	{"internal/natsbus", "nats"},
	{"internal/httpcontroller", "http-controller"},
	{"internal/notification", "notification"},
	{"internal/telemetry", "telemetry"},
	{"internal/pipeline", "pipeline"},
}

// componentFromStack names the first caller outside this package.
func componentFromStack() string {
	pcs := make([]uintptr, 32)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs)])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, selfPackage+".") {
			return componentOf(frame.Function)
		}
		if !more {
			return ""
		}
	}
}

// componentOf maps a fully qualified function name to a component, falling
// back to the last package path element.
func componentOf(funcName string) string {
	for _, p := range componentPrefixes {
		if strings.Contains(funcName, p.prefix) {
			return p.component
		}
	}
	pkg := funcName[strings.LastIndex(funcName, "/")+1:]
	if dot := strings.Index(pkg, "."); dot > 0 {
		return pkg[:dot]
	}
	return ""
}

// detectCategory guesses a category for errors built without one.
func detectCategory(err error, component string) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "model") && strings.Contains(msg, "load"):
		return CategoryModelLoad
	case strings.Contains(msg, "device"):
		return CategoryAudioSource
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "dial"):
		return CategoryNetwork
	case strings.Contains(msg, "invalid"):
		return CategoryValidation
	}

	switch component {
	case "audiocore":
		return CategoryAudio
	case "recognizer":
		return CategoryRecognition
	case "datastore":
		return CategoryDatabase
	case "http-controller":
		return CategoryHTTP
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

func modelKind(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasPrefix(base, "vosk-model-small"):
		return "vosk-small"
	case strings.HasPrefix(base, "vosk-model"):
		return "vosk"
	}
	return "custom"
}

func sizeClass(size int64) string {
	const mb = 1 << 20
	switch {
	case size < mb:
		return "under-1mb"
	case size < 10*mb:
		return "under-10mb"
	case size < 100*mb:
		return "under-100mb"
	}
	return "100mb-plus"
}

func endpointKind(endpoint string) string {
	scheme, _, found := strings.Cut(strings.ToLower(endpoint), "://")
	if !found {
		return "bare-address"
	}
	switch scheme {
	case "tcp", "mqtt", "ws":
		return "mqtt"
	case "ssl", "tls", "mqtts", "wss":
		return "mqtt-tls"
	case "nats":
		return "nats"
	case "http", "https":
		return scheme
	}
	return "other"
}

// ModelError wraps a failure to load the model at modelPath.
func ModelError(err error, modelPath, language string) *EnhancedError {
	return New(err).
		Component("recognizer").
		Category(CategoryModelLoad).
		Priority(PriorityCritical).
		ModelContext(modelPath, language).
		Build()
}

// FileError starts a file I/O error for path. Callers may refine the
// category before Build.
func FileError(err error, path string, size int64) *ErrorBuilder {
	return New(err).
		Category(CategoryFileIO).
		FileContext(path, size)
}

// NetworkError starts a connection error for endpoint.
func NetworkError(err error, endpoint string, timeout time.Duration) *ErrorBuilder {
	return New(err).
		Category(CategoryNetwork).
		NetworkContext(endpoint, timeout)
}

// NewStd returns a plain error, for sentinels.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is errors.Join from the standard library.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err's outermost EnhancedError has category.
func IsCategory(err error, category ErrorCategory) bool {
	return CategoryOf(err) == category
}

// CategoryOf returns the category of the outermost EnhancedError in err's
// tree, or CategoryGeneric.
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) && ee.Category != "" {
		return ee.Category
	}
	return CategoryGeneric
}
