//go:build !integration

package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	blobmocks "github.com/sells-group/statement-flow/internal/blob/mocks"
	"github.com/sells-group/statement-flow/internal/model"
	storemocks "github.com/sells-group/statement-flow/internal/store/mocks"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "run-1", Status: model.RunStatusCompleted, Retries: 1, StartedAt: started, UpdatedAt: started.Add(2500 * time.Millisecond)},
		{ID: "run-2", Status: model.RunStatusFailed, StartedAt: started, UpdatedAt: started.Add(time.Second),
			Error: &model.PipelineError{Code: model.ErrCodeGeneration, Stage: model.StageGeneration}},
		{ID: "run-3", Status: model.RunStatusProcessing, StartedAt: started, UpdatedAt: started},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "2.5s")
	assert.Contains(t, out, "GENERATION_ERROR at generation")
	assert.Contains(t, out, "2025-03-01 12:00:00")
	assert.Contains(t, out, "processing")
}

func TestLoadResult_FailedRun(t *testing.T) {
	run := &model.Run{
		ID:      "run-1",
		Status:  model.RunStatusFailed,
		Retries: 2,
		Error:   &model.PipelineError{Code: model.ErrCodeVerification, Message: "verifier down", Stage: model.StageVerification},
	}
	rec := &model.VerificationRecord{
		RunID:       "run-1",
		Attempt:     3,
		DiagramPath: "runs/run-1/diagram-3.png",
		Report:      model.VerificationReport{OverallAccuracy: 0.8, Reasoning: "values differ"},
	}
	st := storemocks.NewMockStore(t)
	st.On("ListFlows", mock.Anything, "run-1").Return(sampleFlows, nil).Once()
	st.On("GetLatestVerification", mock.Anything, "run-1").Return(rec, nil).Once()

	res, ver, err := loadResult(context.Background(), st, run)
	require.NoError(t, err)
	assert.Same(t, rec, ver)
	assert.False(t, res.Success)
	assert.Zero(t, res.Accuracy)
	assert.Equal(t, "values differ", res.Reasoning)
	assert.Equal(t, "runs/run-1/diagram-3.png", res.DiagramPath)
	assert.Equal(t, 2, res.Metadata.Retries)
	assert.Equal(t, 2, res.Metadata.FlowsExtracted)
	assert.Equal(t, run.Error, res.Error)
}

func TestLoadResult_PendingRun(t *testing.T) {
	run := &model.Run{ID: "run-2", Status: model.RunStatusPending, StartedAt: time.Now()}
	st := storemocks.NewMockStore(t)
	st.On("ListFlows", mock.Anything, "run-2").Return(nil, nil).Once()
	st.On("GetLatestVerification", mock.Anything, "run-2").Return(nil, nil).Once()

	res, ver, err := loadResult(context.Background(), st, run)
	require.NoError(t, err)
	assert.Nil(t, ver)
	assert.Nil(t, res.VerificationReport)
	assert.Zero(t, res.Metadata.ProcessingTimeMs)
	assert.False(t, res.Success)
}

func TestLoadResult_StoreError(t *testing.T) {
	st := storemocks.NewMockStore(t)
	st.On("ListFlows", mock.Anything, "run-3").Return(nil, errors.New("db down")).Once()

	_, _, err := loadResult(context.Background(), st, &model.Run{ID: "run-3"})
	assert.ErrorContains(t, err, "list flows for run run-3")
}

func TestPurgeRun(t *testing.T) {
	run := &model.Run{ID: "run-4", InputPath: "runs/run-4/input.pdf"}

	st := storemocks.NewMockStore(t)
	st.On("DeleteRun", mock.Anything, "run-4").Return(nil).Once()
	blobs := blobmocks.NewMockStore(t)
	blobs.On("DeleteObject", mock.Anything, "runs/run-4/input.pdf").Return(nil).Once()

	require.NoError(t, purgeRun(context.Background(), st, blobs, run))
}

func TestPurgeRun_BlobFailureKeepsRecords(t *testing.T) {
	run := &model.Run{ID: "run-5", DiagramPath: "runs/run-5/diagram-1.png"}

	st := storemocks.NewMockStore(t)
	blobs := blobmocks.NewMockStore(t)
	blobs.On("DeleteObject", mock.Anything, "runs/run-5/diagram-1.png").Return(errors.New("ftp: 421")).Once()

	err := purgeRun(context.Background(), st, blobs, run)
	assert.ErrorContains(t, err, "delete blob runs/run-5/diagram-1.png")
	st.AssertNotCalled(t, "DeleteRun", mock.Anything, mock.Anything)
}
