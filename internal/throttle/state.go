// Package throttle gates camera frames into the inference stage: at most one
// inference in flight and a hard ceiling on the submission rate. Frames that
// do not pass the gate are dropped, never queued.
package throttle

import "github.com/tphakala/lensnet-go/internal/observability/metrics"

// State of the dispatcher.
type State int

const (
	// StateIdle means the dispatcher is stopped and drops everything.
	StateIdle State = iota
	// StateReady means no inference is in flight.
	StateReady
	// StateBusy means an inference is in flight.
	StateBusy
)

var stateNames = []string{"idle", "ready", "busy"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Decision is the outcome of offering one frame.
type Decision int

const (
	Submitted Decision = iota
	DroppedInterval
	DroppedBusy
	DroppedSwapping
	DroppedStopped
)

func (d Decision) String() string {
	switch d {
	case Submitted:
		return metrics.DecisionSubmitted
	case DroppedInterval:
		return metrics.DecisionDroppedInterval
	case DroppedBusy:
		return metrics.DecisionDroppedBusy
	case DroppedSwapping:
		return metrics.DecisionDroppedSwapping
	case DroppedStopped:
		return metrics.DecisionDroppedStopped
	default:
		return "unknown"
	}
}

// Dropped reports whether the frame was discarded.
func (d Decision) Dropped() bool { return d != Submitted }

// Stats are cumulative dispatcher counters.
type Stats struct {
	Offered         uint64
	Submitted       uint64
	DroppedInterval uint64
	DroppedBusy     uint64
	DroppedSwapping uint64
	DroppedStopped  uint64
	Completed       uint64
	Failed          uint64
}

// Dropped returns the total number of dropped frames.
func (s Stats) Dropped() uint64 {
	return s.DroppedInterval + s.DroppedBusy + s.DroppedSwapping + s.DroppedStopped
}
