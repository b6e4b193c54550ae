// Package bestshot runs timed sessions that capture full resolution photos
// whenever a target label is confidently visible and keep the best of them.
package bestshot

import (
	"cmp"
	"slices"
	"time"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/location"
)

// State of the sequencer.
type State int

const (
	StateInactive State = iota
	StateActive
	StateCompleting
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	default:
		return "inactive"
	}
}

var (
	ErrSessionActive = errors.NewStd("best shot session already active")
	ErrNotActive     = errors.NewStd("no active best shot session")
	ErrInvalidParams = errors.NewStd("invalid best shot parameters")
)

const (
	DefaultCaptureInterval = time.Second
	DefaultKeepTop         = 3
	DefaultFinalizeTimeout = 5 * time.Second
	DefaultThumbnailSize   = 160
)

// Params describe one session.
type Params struct {
	Duration    time.Duration
	TargetLabel string
	Threshold   float32
}

func (p Params) validate() error {
	switch {
	case p.Duration <= 0, p.Duration%time.Second != 0:
		// the countdown runs in whole seconds
		return errors.New(ErrInvalidParams).Component("bestshot").Category(errors.CategoryValidation).
			Context("duration", p.Duration.String()).Build()
	case detection.NormalizeLabel(p.TargetLabel) == "":
		return errors.New(ErrInvalidParams).Component("bestshot").Category(errors.CategoryValidation).
			Context("reason", "empty target label").Build()
	case p.Threshold < 0 || p.Threshold > 1:
		return errors.New(ErrInvalidParams).Component("bestshot").Category(errors.CategoryValidation).
			Context("threshold", p.Threshold).Build()
	}
	return nil
}

// Candidate is one captured photo. Candidates are never modified after creation.
type Candidate struct {
	ID               string                         `json:"id"`
	SessionID        string                         `json:"session_id"`
	ImageData        []byte                         `json:"-"`
	TriggeringResult detection.ClassificationResult `json:"triggering_result"`
	Thumbnail        []byte                         `json:"-"`
	Location         *location.Coordinate           `json:"location,omitempty"`
	Light            location.Light                 `json:"light,omitempty"`
	FacesBlurred     int                            `json:"faces_blurred,omitempty"`
	CapturedAt       time.Time                      `json:"captured_at"`
}

// Rank orders candidates by triggering confidence, highest first, and keeps
// at most keep of them. Ties keep capture order.
func Rank(cands []Candidate, keep int) []Candidate {
	out := slices.Clone(cands)
	slices.SortStableFunc(out, func(a, b Candidate) int {
		return cmp.Compare(b.TriggeringResult.Confidence, a.TriggeringResult.Confidence)
	})
	if keep > 0 && len(out) > keep {
		out = out[:keep]
	}
	return out
}

// Progress is the externally visible session state.
type Progress struct {
	State       State         `json:"-"`
	StateName   string        `json:"state"`
	SessionID   string        `json:"session_id,omitempty"`
	TargetLabel string        `json:"target_label,omitempty"`
	Threshold   float32       `json:"threshold,omitempty"`
	Remaining   time.Duration `json:"-"`
	// RemainingSeconds mirrors Remaining for JSON consumers.
	RemainingSeconds float64   `json:"remaining_seconds"`
	Candidates       int       `json:"candidates"`
	StartedAt        time.Time `json:"started_at,omitzero"`
}

// Completion is delivered when a session ends.
type Completion struct {
	SessionID  string
	Params     Params
	Outcome    string // metrics.OutcomeCompleted, OutcomeCancelled or OutcomeEmpty
	Candidates []Candidate
	Captured   int // candidates captured before ranking
	Failed     int // captures that failed
	StartedAt  time.Time
	EndedAt    time.Time
}
