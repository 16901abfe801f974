package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultAccuracyThreshold is the tolerated relative error (0.1%).
const DefaultAccuracyThreshold = 0.001

// PercentageError returns |actual-expected|/expected*100. An expected value
// of zero yields 0 when actual is also zero and +Inf otherwise.
func PercentageError(expected, actual float64) float64 {
	if expected == 0 {
		if actual == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(actual-expected) / math.Abs(expected) * 100
}

// Percent is a percentage that survives JSON encoding when infinite.
type Percent float64

// MarshalJSON encodes +Inf as the string "Infinity".
func (p Percent) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(p), 1) {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(p))
}

// UnmarshalJSON accepts numbers and the string "Infinity".
func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == `"Infinity"` {
		*p = Percent(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return eris.Wrap(err, "percent: decode")
	}
	*p = Percent(f)
	return nil
}

// Discrepancy is a flow whose diagram value is outside tolerance.
type Discrepancy struct {
	Flow            string  `json:"flow"`
	Expected        float64 `json:"expected"`
	Actual          float64 `json:"actual"`
	PercentageError Percent `json:"percentage_error"`
}

// NewDiscrepancy builds a discrepancy with its percentage error filled in.
func NewDiscrepancy(flow string, expected, actual float64) Discrepancy {
	return Discrepancy{
		Flow:            flow,
		Expected:        expected,
		Actual:          actual,
		PercentageError: Percent(PercentageError(expected, actual)),
	}
}

// ValueComparison records what the verifier read for one flow.
type ValueComparison struct {
	Flow         string   `json:"flow"`
	DiagramValue float64  `json:"diagram_value"`
	SourceValue  float64  `json:"source_value"`
	Match        bool     `json:"match"`
	Error        *Percent `json:"error,omitempty"`
}

// VerificationReport is the outcome of one verification attempt. Reports
// are superseded on retry, never mutated.
type VerificationReport struct {
	Timestamp        time.Time         `json:"timestamp"`
	OverallAccuracy  float64           `json:"overall_accuracy"`
	FlowsVerified    int               `json:"flows_verified"`
	FlowsTotal       int               `json:"flows_total"`
	Discrepancies    []Discrepancy     `json:"discrepancies"`
	Passed           bool              `json:"passed"`
	ConfidenceScore  float64           `json:"confidence_score"`
	Reasoning        string            `json:"reasoning"`
	ValueComparisons []ValueComparison `json:"value_comparisons,omitempty"`
}

// PassesThreshold applies the pass rule: zero discrepancies and an overall
// accuracy of at least 1-threshold.
func (r VerificationReport) PassesThreshold(threshold float64) bool {
	return len(r.Discrepancies) == 0 && r.OverallAccuracy >= 1-threshold
}

// Evaluate returns a copy of r with Passed set from PassesThreshold.
func (r VerificationReport) Evaluate(threshold float64) VerificationReport {
	r.Passed = r.PassesThreshold(threshold)
	return r
}

// Validate checks the report invariants against threshold.
func (r VerificationReport) Validate(threshold float64) error {
	if r.OverallAccuracy < 0 || r.OverallAccuracy > 1 {
		return eris.Errorf("report: overall_accuracy must be within [0,1], got %v", r.OverallAccuracy)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return eris.Errorf("report: confidence_score must be within [0,1], got %v", r.ConfidenceScore)
	}
	if r.FlowsVerified < 0 {
		return eris.Errorf("report: flows_verified is negative (%d)", r.FlowsVerified)
	}
	if r.FlowsTotal < r.FlowsVerified {
		return eris.Errorf("report: flows_total %d is below flows_verified %d", r.FlowsTotal, r.FlowsVerified)
	}
	if strings.TrimSpace(r.Reasoning) == "" {
		return eris.New("report: reasoning is empty")
	}
	for _, d := range r.Discrepancies {
		if d.PercentageError < 0 {
			return eris.Errorf("report: discrepancy %s has negative error", d.Flow)
		}
	}
	if r.Passed != r.PassesThreshold(threshold) {
		return eris.Errorf("report: passed=%t contradicts %d discrepancies at accuracy %v",
			r.Passed, len(r.Discrepancies), r.OverallAccuracy)
	}
	return nil
}
