package pipeline

import (
	"time"

	"github.com/sells-group/statement-flow/internal/model"
)

// completedResult builds the result of a run whose regeneration cycle ran
// to the end. Success mirrors the last report.
func completedResult(r *run, elapsed time.Duration) *model.PipelineResult {
	res := baseResult(r, elapsed)
	if rep := r.acc.report; rep != nil {
		res.Success = rep.Passed
		res.Reasoning = rep.Reasoning
		res.Accuracy = rep.OverallAccuracy
	}
	return res
}

// failureResult builds the result of a run that reached Failed. Accuracy is
// zero; partial data from the accumulator is attached when present.
func failureResult(r *run, perr *model.PipelineError, elapsed time.Duration) *model.PipelineResult {
	res := baseResult(r, elapsed)
	res.Success = false
	res.Accuracy = 0
	res.Reasoning = perr.Message
	res.Error = perr
	return res
}

func baseResult(r *run, elapsed time.Duration) *model.PipelineResult {
	res := &model.PipelineResult{
		RunID:   r.acc.runID,
		Diagram: []byte{},
		Metadata: model.ResultMetadata{
			ProcessingTimeMs: elapsed.Milliseconds(),
			Retries:          r.acc.retries,
			FlowsExtracted:   r.acc.flowsExtracted,
		},
		DiagramPath:        r.acc.diagramPath,
		VerificationReport: r.acc.report,
	}
	if r.acc.analysis != nil {
		res.Flows = r.acc.analysis.Flows
		meta := r.acc.analysis.Metadata
		res.StatementMetadata = &meta
	}
	if r.acc.diagram != nil {
		res.Diagram = r.acc.diagram.Data
	}
	return res
}
