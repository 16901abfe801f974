package main

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/response"
	"github.com/sells-group/statement-flow/internal/store"
)

// loadResult rebuilds a PipelineResult from the stored run, its flows and
// its latest verification record. The diagram bytes are not loaded.
func loadResult(ctx context.Context, st store.Store, run *model.Run) (*model.PipelineResult, *model.VerificationRecord, error) {
	flows, err := st.ListFlows(ctx, run.ID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "list flows for run %s", run.ID)
	}
	ver, err := st.GetLatestVerification(ctx, run.ID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "latest verification for run %s", run.ID)
	}

	res := &model.PipelineResult{
		RunID:       run.ID,
		Success:     run.Status == model.RunStatusCompleted,
		DiagramPath: run.DiagramPath,
		Flows:       flows,
		Error:       run.Error,
		Metadata: model.ResultMetadata{
			Retries:        run.Retries,
			FlowsExtracted: len(flows),
		},
	}
	if run.Status.Terminal() {
		res.Metadata.ProcessingTimeMs = run.UpdatedAt.Sub(run.StartedAt).Milliseconds()
	}
	if ver != nil {
		rep := ver.Report
		res.VerificationReport = &rep
		res.Reasoning = rep.Reasoning
		if res.DiagramPath == "" {
			res.DiagramPath = ver.DiagramPath
		}
		if res.Error == nil {
			res.Accuracy = rep.OverallAccuracy
		}
	}
	return res, ver, nil
}

// storedResponse formats a stored run for display, signing the diagram
// path when blobs is set.
func storedResponse(ctx context.Context, st store.Store, blobs blob.Store, run *model.Run) (response.Response, error) {
	res, _, err := loadResult(ctx, st, run)
	if err != nil {
		return response.Response{}, err
	}
	resp := response.FormatResult(res)
	resp.Status = string(run.Status)
	attachDiagramURL(ctx, blobs, &resp, urlTTL())
	return resp, nil
}

// purgeRun removes the run's blobs and then its records. Missing blobs are
// ignored.
func purgeRun(ctx context.Context, st store.Store, blobs blob.Store, run *model.Run) error {
	if blobs != nil {
		for _, p := range []string{run.InputPath, run.DiagramPath} {
			if p == "" {
				continue
			}
			if err := blobs.DeleteObject(ctx, p); err != nil && !errors.Is(err, blob.ErrNotFound) {
				return eris.Wrapf(err, "delete blob %s", p)
			}
		}
	}
	return st.DeleteRun(ctx, run.ID)
}
