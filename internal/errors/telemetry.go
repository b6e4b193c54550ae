// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with path and URL scrubbing
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))
	title := errorTitle(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_title", title)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		level := levelFor(ee)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func errorTitle(ee *EnhancedError) string {
	parts := make([]string, 0, 3)
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, strings.ToUpper(c[:1])+c[1:])
	}
	parts = append(parts, categoryTitle(ee.Category))
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		parts = append(parts, strings.ReplaceAll(op, "_", " "))
	}
	return strings.Join(parts, " ")
}

func categoryTitle(category ErrorCategory) string {
	words := strings.Split(string(category), "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ") + " Error"
}

func levelFor(ee *EnhancedError) sentry.Level {
	switch ee.Priority {
	case PriorityCritical:
		return sentry.LevelFatal
	case PriorityHigh:
		return sentry.LevelError
	case PriorityLow:
		return sentry.LevelInfo
	}
	switch ee.Category {
	case CategoryModelLoad, CategoryModelInit, CategoryCaptureDevice, CategoryDatabase:
		return sentry.LevelError
	case CategoryValidation, CategoryNotFound, CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelWarning
	}
}

var (
	urlPattern  = regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^\s]+`)
	pathPattern = regexp.MustCompile(`(?:/[^\s/]+){2,}`)
)

// scrubMessage strips URLs and absolute paths, which may carry user names or credentials.
func scrubMessage(msg string) string {
	msg = urlPattern.ReplaceAllString(msg, "[url]")
	return pathPattern.ReplaceAllString(msg, "[path]")
}
