// Package detection provides the value types shared by the live classification
// pipeline: classification results, live result snapshots and camera frames.
package detection

import (
	"math"
	"slices"
	"time"
)

// ClassificationResult is a single (label, confidence) observation from the model.
// Values are immutable once created.
type ClassificationResult struct {
	Label      string    // raw model class identifier
	Confidence float32   // in [0, 1]
	ObservedAt time.Time // when the frame producing this result was classified
}

// NewResult clamps confidence into [0, 1].
func NewResult(label string, confidence float32, observedAt time.Time) ClassificationResult {
	switch {
	case confidence < 0 || math.IsNaN(float64(confidence)):
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return ClassificationResult{Label: label, Confidence: confidence, ObservedAt: observedAt}
}

// DisplayLabel returns the humanized form of the label.
func (r ClassificationResult) DisplayLabel() string {
	return ParseLabel(r.Label).Display
}

// Key returns the registry key: the lowercased display label.
func (r ClassificationResult) Key() string {
	return ParseLabel(r.Label).Key()
}

// Terms returns every normalized term the label can be matched by.
func (r ClassificationResult) Terms() []string {
	return ParseLabel(r.Label).Terms
}

// Age returns how long ago the result was observed, never negative.
func (r ClassificationResult) Age(now time.Time) time.Duration {
	if age := now.Sub(r.ObservedAt); age > 0 {
		return age
	}
	return 0
}

// DecayFactor falls linearly from 1 at observation to 0 at the end of window.
func (r ClassificationResult) DecayFactor(now time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	f := 1 - float64(r.Age(now))/float64(window)
	return math.Max(0, math.Min(1, f))
}

// Expired reports whether the result has outlived window at now.
func (r ClassificationResult) Expired(now time.Time, window time.Duration) bool {
	return r.Age(now) >= window
}

// LiveResult is a published entry of the live view.
type LiveResult struct {
	ClassificationResult
	Display string  // humanized label
	Opacity float64 // recency-derived fade in [0, 1]
}

// LiveSnapshot is an immutable ranked view of the currently visible labels.
type LiveSnapshot struct {
	Seq       uint64 // increments on every publish
	Results   []LiveResult
	UpdatedAt time.Time
}

// Empty reports whether the snapshot holds no results.
func (s *LiveSnapshot) Empty() bool {
	return s == nil || len(s.Results) == 0
}

// Find returns the first result whose terms contain the normalized label.
func (s *LiveSnapshot) Find(label string) (LiveResult, bool) {
	if s == nil {
		return LiveResult{}, false
	}
	key := NormalizeLabel(label)
	for _, r := range s.Results {
		if slices.Contains(r.Terms(), key) {
			return r, true
		}
	}
	return LiveResult{}, false
}
