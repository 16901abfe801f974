package response

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/statement-flow/internal/model"
)

func TestText_Success(t *testing.T) {
	res := &model.PipelineResult{
		RunID:             "run-1",
		Success:           true,
		Accuracy:          0.999,
		Reasoning:         "labels match",
		Flows:             sampleFlows(),
		StatementMetadata: sampleMetadata(),
		Metadata:          model.ResultMetadata{ProcessingTimeMs: 1500, FlowsExtracted: 2},
		VerificationReport: &model.VerificationReport{
			FlowsVerified: 2,
			FlowsTotal:    2,
		},
	}
	resp := FormatResult(res)
	resp.DiagramURL = "http://localhost/blobs/runs/run-1/diagram-1.png?sig=x"

	out := Text(resp)
	assert.Contains(t, out, "# Flow Report: Acme Corp Q1 2025")
	assert.Contains(t, out, "Run: run-1")
	assert.Contains(t, out, "- Status: verified")
	assert.Contains(t, out, "- Accuracy: 99.90%")
	assert.Contains(t, out, "- Flows verified: 2/2")
	assert.Contains(t, out, "- Processing: 1.5s (0 retries)")
	assert.Contains(t, out, "- Diagram: http://localhost/blobs/runs/run-1/diagram-1.png?sig=x")
	assert.Contains(t, out, "- Revenue -> Gross Profit: 1000.00 (revenue)")
	assert.Contains(t, out, "## Reasoning\nlabels match")
	assert.NotContains(t, out, "## Error")
}

func TestText_Failure(t *testing.T) {
	resp := FormatError(ErrorInfo{Code: model.ErrCodeUnknown, Message: "run not found", Stage: model.StageParsing}, nil)

	out := Text(resp)
	assert.Contains(t, out, "# Flow Report: statement")
	assert.Contains(t, out, "- Status: failed")
	assert.Contains(t, out, "- UNKNOWN_ERROR at parsing: run not found")
	assert.Contains(t, out, "- Recoverable: false")
	assert.NotContains(t, out, "## Flows")
}

func TestText_NotVerified(t *testing.T) {
	resp := FormatSuccess(&model.PipelineResult{
		Metadata: model.ResultMetadata{FlowsExtracted: 1},
	}, nil, &model.VerificationReport{
		Discrepancies: []model.Discrepancy{model.NewDiscrepancy("A -> B", 100, 50)},
	})
	resp.DiagramPath = "runs/x/diagram-3.png"

	out := Text(resp)
	assert.Contains(t, out, "- Status: not verified")
	assert.Contains(t, out, "- Diagram: runs/x/diagram-3.png")
	assert.Contains(t, out, "- A -> B: expected 100.00, diagram shows 50.00 (50.00%)")
}
