// Package errors provides centralized error handling with optional telemetry integration
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryModelInit      ErrorCategory = "model-initialization"
	CategoryModelLoad      ErrorCategory = "model-loading"
	CategoryLabelLoad      ErrorCategory = "label-loading"
	CategoryInference      ErrorCategory = "inference"
	CategoryCaptureDevice  ErrorCategory = "capture-device"
	CategoryCapturePhoto   ErrorCategory = "capture-photo"
	CategoryImageProcess   ErrorCategory = "image-processing"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryDatabase       ErrorCategory = "database"
	CategoryNetwork        ErrorCategory = "network"
	CategoryHTTP           ErrorCategory = "http-request"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryNotification   ErrorCategory = "notification"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryState          ErrorCategory = "state"
	CategoryLimit          ErrorCategory = "limit"
	CategoryNotFound       ErrorCategory = "not-found"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryCancellation   ErrorCategory = "cancellation"
	CategoryGeneric        ErrorCategory = "generic"
)

// Priority constants for error prioritization
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

const modulePrefix = "github.com/tphakala/lensnet-go/internal/"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred (lazily detected)
	Category  ErrorCategory  // Error category for better grouping
	Priority  string         // Explicit priority override (optional)
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	reported  bool
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	if ee.Err == nil {
		return string(ee.Category)
	}
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, anything else through the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component name
func (ee *EnhancedError) GetComponent() string {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported marks this error as reported to telemetry
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	ee.reported = true
}

// IsReported returns whether this error has been reported
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name (auto-detected if not set)
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets the explicit priority override for the error
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	case "":
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// ModelContext adds model-specific context
func (eb *ErrorBuilder) ModelContext(modelType, assetPath string) *ErrorBuilder {
	if modelType != "" {
		eb.Context("model_type", modelType)
	}
	if assetPath != "" {
		eb.Context("model_asset", getFileExtension(assetPath))
	}
	return eb
}

// DeviceContext adds capture device context
func (eb *ErrorBuilder) DeviceContext(deviceID string, position string) *ErrorBuilder {
	if deviceID != "" {
		eb.Context("device_id", deviceID)
	}
	if position != "" {
		eb.Context("device_position", position)
	}
	return eb
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	eb.Context("duration_ms", duration.Milliseconds())
	return eb
}

// Build creates the EnhancedError and triggers optional telemetry reporting
func (eb *ErrorBuilder) Build() *EnhancedError {
	if eb.err == nil {
		eb.err = stderrors.New("unspecified error")
	}
	ee := &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
	}

	// Fast path: skip stack inspection when nobody is listening.
	if !hasActiveReporting.Load() {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
		if ee.Category == "" {
			ee.Category = inheritCategory(eb.err)
		}
		return ee
	}

	if ee.component == "" {
		ee.component = detectComponent()
	}
	if ee.Category == "" {
		ee.Category = inheritCategory(eb.err)
	}
	reportToTelemetry(ee)
	return ee
}

// inheritCategory keeps the category of a wrapped enhanced or categorized error.
func inheritCategory(err error) ErrorCategory {
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}
	var enhErr *EnhancedError
	if stderrors.As(err, &enhErr) && enhErr.Category != "" {
		return enhErr.Category
	}
	return CategoryGeneric
}

// detectComponent walks the call stack for the first package inside this module
// that is not the errors package itself.
func detectComponent() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		name := frame.Function
		if idx := strings.Index(name, modulePrefix); idx >= 0 {
			rest := name[idx+len(modulePrefix):]
			if !strings.HasPrefix(rest, "errors.") {
				if dot := strings.Index(rest, "."); dot > 0 {
					return rest[:dot]
				}
			}
		}
		if !more {
			break
		}
	}
	return ComponentUnknown
}

func getFileExtension(path string) string {
	if lastDot := strings.LastIndex(path, "."); lastDot > 0 && lastDot < len(path)-1 {
		return strings.ToLower(path[lastDot+1:])
	}
	return "none"
}

// Reporter registry

var (
	hasActiveReporting atomic.Bool
	reporterMu         sync.RWMutex
	telemetryReporter  TelemetryReporter
)

// SetTelemetryReporter installs the reporter used by Build. A nil reporter disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	telemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := telemetryReporter
	reporterMu.RUnlock()
	if reporter == nil || !reporter.IsEnabled() {
		return
	}
	reporter.ReportError(ee)
}

// Standard library passthrough functions

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}

// IsNotFound checks if an error is an EnhancedError with CategoryNotFound.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}
