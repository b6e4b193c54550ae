package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tphakala/lensnet-go/internal/detection"
	"github.com/tphakala/lensnet-go/internal/testutil"
)

func live(label string, conf float32) detection.LiveResult {
	r := detection.NewResult(label, conf, testutil.Epoch)
	return detection.LiveResult{ClassificationResult: r, Display: r.DisplayLabel(), Opacity: 1}
}

func TestShouldHighlight(t *testing.T) {
	t.Parallel()

	keyboard := NewRuleSet(map[string]float64{"keyboard": 0.8})

	tests := []struct {
		name    string
		results []detection.LiveResult
		rules   RuleSet
		want    bool
	}{
		{"above threshold", []detection.LiveResult{live("keyboard", 0.85)}, keyboard, true},
		{"below threshold", []detection.LiveResult{live("keyboard", 0.75)}, keyboard, false},
		{"exactly at threshold", []detection.LiveResult{live("keyboard", 0.8)}, keyboard, true},
		{"at threshold 0.7", []detection.LiveResult{live("keyboard", 0.7)}, NewRuleSet(map[string]float64{"keyboard": 0.7}), true},
		{"at threshold 0.9", []detection.LiveResult{live("keyboard", 0.9)}, NewRuleSet(map[string]float64{"keyboard": 0.9}), true},
		{"just below threshold 0.7", []detection.LiveResult{live("keyboard", 0.69)}, NewRuleSet(map[string]float64{"keyboard": 0.7}), false},
		{"no rules", []detection.LiveResult{live("keyboard", 0.99)}, nil, false},
		{"no results", nil, keyboard, false},
		{"other label", []detection.LiveResult{live("mouse", 0.99)}, keyboard, false},
		{
			"compound label sub-term",
			[]detection.LiveResult{live("laptop, notebook", 0.9)},
			NewRuleSet(map[string]float64{"notebook": 0.5}),
			true,
		},
		{
			"synset label",
			[]detection.LiveResult{live("n03085013 computer keyboard, keypad", 0.9)},
			NewRuleSet(map[string]float64{"Keypad": 0.5}),
			true,
		},
		{
			"underscored rule key",
			[]detection.LiveResult{live("golden retriever", 0.6)},
			NewRuleSet(map[string]float64{"golden_retriever": 0.5}),
			true,
		},
		{
			"second result matches",
			[]detection.LiveResult{live("desk", 0.9), live("keyboard", 0.81)},
			keyboard,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShouldHighlight(tt.results, tt.rules))
		})
	}
}

func TestEvaluateReportsMatch(t *testing.T) {
	t.Parallel()
	res := Evaluate([]detection.LiveResult{live("laptop, notebook", 0.9)}, NewRuleSet(map[string]float64{"notebook": 0.5}))
	assert.True(t, res.ShouldHighlight)
	assert.Equal(t, "Laptop", res.Label)
	assert.Equal(t, "notebook", res.Term)
	assert.InDelta(t, 0.5, res.Threshold, 1e-9)
}

func TestNewRuleSetNormalizes(t *testing.T) {
	t.Parallel()
	rs := NewRuleSet(map[string]float64{"  Coffee_Mug ": 1.5, "": 0.2, "cat": -1})
	assert.Equal(t, RuleSet{"coffee mug": 1, "cat": 0}, rs)

	c := rs.Clone()
	c["dog"] = 0.5
	assert.NotContains(t, rs, "dog")
}
