// Package highlight decides whether a configured object is currently visible.
package highlight

import (
	"maps"

	"github.com/tphakala/lensnet-go/internal/detection"
)

// RuleSet maps a normalized label to the confidence it must reach.
type RuleSet map[string]float64

// NewRuleSet normalizes the keys of rules. Empty keys are dropped and
// thresholds are clamped to [0, 1].
func NewRuleSet(rules map[string]float64) RuleSet {
	rs := make(RuleSet, len(rules))
	for k, v := range rules {
		key := detection.NormalizeLabel(k)
		if key == "" {
			continue
		}
		rs[key] = min(1, max(0, v))
	}
	return rs
}

// Clone returns a copy of the rule set.
func (rs RuleSet) Clone() RuleSet {
	return maps.Clone(rs)
}

// Result explains a highlight decision.
type Result struct {
	ShouldHighlight bool
	Label           string  // display label of the matching live result
	Term            string  // rule key that matched
	Confidence      float32 // confidence of the matching live result
	Threshold       float64
}

// Evaluate returns the first live result, in ranked order, with a term that
// matches a rule at or above its threshold.
func Evaluate(results []detection.LiveResult, rules RuleSet) Result {
	if len(rules) == 0 {
		return Result{}
	}
	for _, r := range results {
		for _, term := range r.Terms() {
			threshold, ok := rules[term]
			// confidences are float32; compare at that precision so a result
			// exactly at a configured threshold matches
			if !ok || r.Confidence < float32(threshold) {
				continue
			}
			return Result{
				ShouldHighlight: true,
				Label:           r.DisplayLabel(),
				Term:            term,
				Confidence:      r.Confidence,
				Threshold:       threshold,
			}
		}
	}
	return Result{}
}

// ShouldHighlight reports whether any live result satisfies a rule.
func ShouldHighlight(results []detection.LiveResult, rules RuleSet) bool {
	return Evaluate(results, rules).ShouldHighlight
}
