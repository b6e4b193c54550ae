// Package telemetry provides opt-in, privacy filtered error reporting to Sentry.
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"

	"github.com/tphakala/lensnet-go/internal/buildinfo"
	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// Reporting limits.
const (
	reportsPerMinute = 30
	reportBurst      = 10
	flushTimeout     = 2 * time.Second
)

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// PlatformInfo holds privacy-safe platform information.
type PlatformInfo struct {
	OS           string `json:"os"`
	Architecture string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	GoVersion    string `json:"go_version"`
}

func collectPlatformInfo() PlatformInfo {
	return PlatformInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

// Option configures Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport, for tests.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Init configures the Sentry SDK when enabled and installs the error
// reporter used by the errors package. The returned function flushes
// pending events; it is safe to call when reporting is disabled.
func Init(settings *conf.Settings, build buildinfo.BuildInfo, opts ...Option) (func(), error) {
	log := GetLogger()
	if !settings.Sentry.Enabled {
		log.Info("error reporting disabled (opt-in required)")
		return func() {}, nil
	}
	if settings.Sentry.DSN == "" {
		return nil, errors.Newf("sentry.dsn is required when sentry is enabled").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	co := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("lensnet-go@%s", build.Version()),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&co)
	}
	if err := sentry.Init(co); err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	platform := collectPlatformInfo()
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", platform.OS)
		scope.SetTag("arch", platform.Architecture)
		scope.SetContext("platform", map[string]any{
			"num_cpu":    platform.NumCPU,
			"go_version": platform.GoVersion,
		})
	})

	errors.SetTelemetryReporter(NewRateLimitedReporter(errors.NewSentryReporter(true), rate.Every(time.Minute/reportsPerMinute), reportBurst))
	log.Info("error reporting enabled",
		logger.String("release", co.Release),
		logger.Int("reports_per_minute", reportsPerMinute))

	return func() {
		errors.SetTelemetryReporter(nil)
		sentry.Flush(flushTimeout)
	}, nil
}

// applyPrivacyFilters strips host identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
