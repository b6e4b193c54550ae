// Package metrics provides the Prometheus collectors used by LensNet-Go.
package metrics

import (
	"errors"

	lnerrors "github.com/tphakala/lensnet-go/internal/errors"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Frame decisions recorded by the throttle.
const (
	DecisionSubmitted       = "submitted"
	DecisionDroppedInterval = "dropped_interval"
	DecisionDroppedBusy     = "dropped_busy"
	DecisionDroppedSwapping = "dropped_swapping"
	DecisionDroppedStopped  = "dropped_stopped"
)

// Best shot session outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeEmpty     = "empty"
)

// categorizeError maps an error to a low cardinality label value.
// Enhanced errors carry their category; anything else is "unknown".
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	var ee *lnerrors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return "unknown"
}

// durationBuckets covers 1ms to ~2s, the useful range for on-device inference.
var durationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}
