package telemetry

import (
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/tphakala/lensnet-go/internal/errors"
)

// RateLimitedReporter drops reports beyond a token bucket so an error
// loop cannot flood the error tracker.
type RateLimitedReporter struct {
	inner   errors.TelemetryReporter
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// NewRateLimitedReporter wraps inner with a limit of r reports per second
// and the given burst.
func NewRateLimitedReporter(inner errors.TelemetryReporter, r rate.Limit, burst int) *RateLimitedReporter {
	return &RateLimitedReporter{inner: inner, limiter: rate.NewLimiter(r, burst)}
}

func (r *RateLimitedReporter) IsEnabled() bool { return r.inner.IsEnabled() }

func (r *RateLimitedReporter) ReportError(ee *errors.EnhancedError) {
	if !r.limiter.Allow() {
		r.dropped.Add(1)
		return
	}
	r.inner.ReportError(ee)
}

// Dropped returns the number of reports discarded by the limiter.
func (r *RateLimitedReporter) Dropped() uint64 { return r.dropped.Load() }
