package response

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-flow/internal/model"
)

func sampleFlows() []model.Flow {
	return []model.Flow{
		{Source: "Revenue", Target: "Gross Profit", Amount: 1000, Category: model.CategoryRevenue},
		{Source: "Gross Profit", Target: "Opex", Amount: 400, Category: model.CategoryExpense},
	}
}

func sampleMetadata() *model.StatementMetadata {
	return &model.StatementMetadata{
		Company:       "Acme Corp",
		Period:        model.Period{Start: "2025-01-01", End: "2025-03-31", Quarter: 1, Year: 2025},
		Currency:      "USD",
		StatementType: []string{"income_statement"},
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{1500, "1.5s"},
		{59999, "60.0s"},
		{60000, "1m 0s"},
		{125400, "2m 5s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatSuccess(t *testing.T) {
	report := &model.VerificationReport{
		OverallAccuracy: 0.999,
		FlowsVerified:   2,
		FlowsTotal:      2,
		Discrepancies:   []model.Discrepancy{},
		Passed:          true,
		ConfidenceScore: 0.93,
		Reasoning:       "labels match",
	}
	result := &model.PipelineResult{
		RunID:              "run-1",
		Success:            true,
		Diagram:            []byte{1, 2, 3},
		DiagramPath:        "runs/run-1/diagram-1.png",
		Reasoning:          "labels match",
		Accuracy:           0.999,
		Metadata:           model.ResultMetadata{ProcessingTimeMs: 1500, Retries: 0, FlowsExtracted: 2},
		Flows:              sampleFlows(),
		VerificationReport: report,
		StatementMetadata:  sampleMetadata(),
	}

	got := FormatSuccess(result, nil, nil)

	want := Response{
		Success:     true,
		RunID:       "run-1",
		Diagram:     []byte{1, 2, 3},
		DiagramPath: "runs/run-1/diagram-1.png",
		Flows:       sampleFlows(),
		Verification: Verification{
			Verified:        true,
			Accuracy:        0.999,
			ConfidenceScore: 0.93,
			Reasoning:       "labels match",
			FlowsVerified:   2,
			FlowsTotal:      2,
			Discrepancies:   []Discrepancy{},
		},
		Metadata: Metadata{
			Statement: &Statement{
				Company:       "Acme Corp",
				PeriodStart:   "2025-01-01",
				PeriodEnd:     "2025-03-31",
				Quarter:       1,
				Year:          2025,
				Currency:      "USD",
				StatementType: []string{"income_statement"},
			},
			Processing: Processing{Time: 1500, TimeFormatted: "1.5s", Retries: 0, FlowsExtracted: 2},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatSuccess mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatSuccess_OverridesAndUnverified(t *testing.T) {
	result := &model.PipelineResult{
		Success:  false,
		Accuracy: 0.8,
		Metadata: model.ResultMetadata{ProcessingTimeMs: 61000, Retries: 2, FlowsExtracted: 2},
	}
	report := &model.VerificationReport{
		OverallAccuracy: 0.8,
		FlowsVerified:   2,
		FlowsTotal:      2,
		Discrepancies:   []model.Discrepancy{model.NewDiscrepancy("Revenue -> Gross Profit", 1000, 600)},
		ConfidenceScore: 0.7,
		Reasoning:       "revenue band reads 600",
	}

	got := FormatSuccess(result, sampleMetadata(), report)

	assert.False(t, got.Verification.Verified)
	assert.Equal(t, "revenue band reads 600", got.Verification.Reasoning)
	assert.Equal(t, "1m 1s", got.Metadata.Processing.TimeFormatted)
	assert.Equal(t, 2, got.Metadata.Processing.Retries)
	require.NotNil(t, got.Metadata.Statement)
	assert.Equal(t, "Acme Corp", got.Metadata.Statement.Company)
	want := []Discrepancy{{Flow: "Revenue -> Gross Profit", Expected: 1000, Actual: 600, PercentageError: 40}}
	if diff := cmp.Diff(want, got.Verification.Discrepancies); diff != "" {
		t.Errorf("discrepancies mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, got.Error)
}

func TestFormatError_NoPartial(t *testing.T) {
	got := FormatError(ErrorInfo{Code: model.ErrCodeUnknown, Message: "run not found", Stage: model.StageParsing}, nil)

	want := Response{
		Verification: Verification{Discrepancies: []Discrepancy{}},
		Metadata:     Metadata{Processing: Processing{TimeFormatted: "0ms"}},
		Error: &ErrorDetails{
			Code:        model.ErrCodeUnknown,
			Message:     "run not found",
			Stage:       model.StageParsing,
			Recoverable: false,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatError mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatError_PartialResults(t *testing.T) {
	flows := sampleFlows()

	got := FormatError(ErrorInfo{Code: model.ErrCodeGeneration, Message: "no image", Stage: model.StageGeneration},
		&PartialResults{Flows: flows})
	assert.Equal(t, 2, got.Verification.FlowsTotal)
	assert.Equal(t, 2, got.Metadata.Processing.FlowsExtracted)
	assert.Equal(t, flows, got.Flows)
	assert.True(t, got.Error.Recoverable)
	assert.False(t, got.Success)

	five := 5
	got = FormatError(ErrorInfo{Code: model.ErrCodeGeneration}, &PartialResults{Flows: flows, FlowsCount: &five})
	assert.Equal(t, 5, got.Verification.FlowsTotal)
	assert.Equal(t, 5, got.Metadata.Processing.FlowsExtracted)
}

func TestFormatResult_Dispatch(t *testing.T) {
	ok := &model.PipelineResult{Success: true, Accuracy: 1, Metadata: model.ResultMetadata{FlowsExtracted: 1}}
	assert.Nil(t, FormatResult(ok).Error)
	assert.True(t, FormatResult(ok).Verification.Verified)

	failed := &model.PipelineResult{
		RunID:    "run-9",
		Diagram:  []byte{},
		Metadata: model.ResultMetadata{ProcessingTimeMs: 250, Retries: 2, FlowsExtracted: 2},
		Flows:    sampleFlows(),
		VerificationReport: &model.VerificationReport{
			FlowsVerified:   1,
			FlowsTotal:      2,
			Discrepancies:   []model.Discrepancy{model.NewDiscrepancy("Gross Profit -> Opex", 400, 0)},
			ConfidenceScore: 0.6,
			Reasoning:       "opex band missing",
		},
		Error: model.NewPipelineError(model.ErrCodeVerification, model.StageVerification, assert.AnError),
	}

	got := FormatResult(failed)

	require.NotNil(t, got.Error)
	assert.Equal(t, model.ErrCodeVerification, got.Error.Code)
	assert.True(t, got.Error.Recoverable)
	assert.Equal(t, "run-9", got.RunID)
	assert.Equal(t, "250ms", got.Metadata.Processing.TimeFormatted)
	assert.Equal(t, 2, got.Metadata.Processing.Retries)
	assert.Equal(t, 2, got.Verification.FlowsTotal)
	assert.Equal(t, 1, got.Verification.FlowsVerified)
	assert.Len(t, got.Verification.Discrepancies, 1)
	assert.Equal(t, 0.0, got.Verification.Accuracy)
}

// flowsTotal always equals the best-known extracted count.
func TestFlowsTotalMatchesExtractedCount(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		res := &model.PipelineResult{Metadata: model.ResultMetadata{FlowsExtracted: n}}
		assert.Equal(t, n, FormatResult(res).Verification.FlowsTotal)

		res.Error = model.NewPipelineError(model.ErrCodeGeneration, model.StageGeneration, assert.AnError)
		assert.Equal(t, n, FormatResult(res).Verification.FlowsTotal)
	}
}

func TestResponseJSON(t *testing.T) {
	resp := FormatError(ErrorInfo{Code: model.ErrCodeExtraction, Message: "boom", Stage: model.StageExtraction}, nil)
	resp.Verification.Discrepancies = []Discrepancy{{Flow: "A -> B", Expected: 0, Actual: 5, PercentageError: model.Percent(math.Inf(1))}}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, false, raw["success"])
	verification := raw["verification"].(map[string]any)
	assert.Contains(t, verification, "flowsTotal")
	assert.Contains(t, verification, "confidenceScore")
	d := verification["discrepancies"].([]any)[0].(map[string]any)
	assert.Equal(t, "Infinity", d["percentageError"])
	errBlock := raw["error"].(map[string]any)
	assert.Equal(t, "EXTRACTION_ERROR", errBlock["code"])
	assert.Equal(t, true, errBlock["recoverable"])
	processing := raw["metadata"].(map[string]any)["processing"].(map[string]any)
	assert.Equal(t, "0ms", processing["timeFormatted"])
	assert.NotContains(t, raw, "diagram")
}
