//go:build !integration

package main

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/pipeline"
)

var samplePDF = []byte("%PDF-1.7\n1 0 obj <<>> endobj\ntrailer\n%%EOF")

var sampleFlows = []model.Flow{
	{Source: "Revenue", Target: "Gross Profit", Amount: 600, Category: model.CategoryRevenue},
	{Source: "Revenue", Target: "Cost of Sales", Amount: 400, Category: model.CategoryExpense},
}

// fakeRunner records inputs and returns a canned result.
type fakeRunner struct {
	mu     sync.Mutex
	inputs [][]byte
	result *model.PipelineResult
}

func (f *fakeRunner) Run(_ context.Context, input []byte, _ ...pipeline.RunOption) *model.PipelineResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	return f.result
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func verifiedResult(runID string) *model.PipelineResult {
	return &model.PipelineResult{
		RunID:       runID,
		Success:     true,
		Diagram:     []byte("png"),
		DiagramPath: "runs/" + runID + "/diagram-1.png",
		Reasoning:   "all values match",
		Accuracy:    1,
		Metadata:    model.ResultMetadata{ProcessingTimeMs: 2500, FlowsExtracted: len(sampleFlows)},
		Flows:       sampleFlows,
		VerificationReport: &model.VerificationReport{
			Timestamp:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			OverallAccuracy: 1,
			FlowsVerified:   2,
			FlowsTotal:      2,
			Discrepancies:   []model.Discrepancy{},
			Passed:          true,
			ConfidenceScore: 0.95,
			Reasoning:       "all values match",
		},
	}
}

func failedResult(runID string) *model.PipelineResult {
	return &model.PipelineResult{
		RunID:   runID,
		Diagram: []byte{},
		Error: &model.PipelineError{
			Code:    model.ErrCodeExtraction,
			Message: "no flows found",
			Stage:   model.StageExtraction,
		},
	}
}
