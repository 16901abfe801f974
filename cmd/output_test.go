//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	blobmocks "github.com/sells-group/statement-flow/internal/blob/mocks"
	"github.com/sells-group/statement-flow/internal/response"
)

func TestWriteResponse_JSON(t *testing.T) {
	resp := response.FormatResult(verifiedResult("run-1"))
	resp.Diagram = nil

	var buf bytes.Buffer
	require.NoError(t, writeResponse(&buf, resp, "json"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.Equal(t, true, decoded["success"])
	assert.NotContains(t, decoded, "diagram")
	assert.Contains(t, buf.String(), "\n  \"")
}

func TestWriteResponse_YAML(t *testing.T) {
	resp := response.FormatResult(verifiedResult("run-1"))

	var buf bytes.Buffer
	require.NoError(t, writeResponse(&buf, resp, "yaml"))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["runId"])
	assert.NotContains(t, decoded, "diagram")
	verification, ok := decoded["verification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, verification["flowsTotal"])
}

func TestWriteResponse_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeResponse(&buf, response.FormatResult(failedResult("run-9")), "text"))
	assert.Contains(t, buf.String(), "# Flow Report: run-9")
	assert.Contains(t, buf.String(), "EXTRACTION_ERROR at extraction: no flows found")
}

func TestWriteResponse_UnknownFormat(t *testing.T) {
	err := writeResponse(&bytes.Buffer{}, response.Response{}, "csv")
	assert.ErrorContains(t, err, `unknown output format "csv"`)
}

func TestAttachDiagramURL(t *testing.T) {
	blobs := blobmocks.NewMockStore(t)
	blobs.On("GetSignedURL", mock.Anything, "runs/a/diagram-1.png", mock.Anything).Return("https://x/a.png", nil).Once()
	blobs.On("GetSignedURL", mock.Anything, "runs/b/diagram-1.png", mock.Anything).Return("", errors.New("no key")).Once()

	ok := response.Response{DiagramPath: "runs/a/diagram-1.png"}
	attachDiagramURL(context.Background(), blobs, &ok, 0)
	assert.Equal(t, "https://x/a.png", ok.DiagramURL)

	failed := response.Response{DiagramPath: "runs/b/diagram-1.png"}
	attachDiagramURL(context.Background(), blobs, &failed, 0)
	assert.Empty(t, failed.DiagramURL)

	none := response.Response{}
	attachDiagramURL(context.Background(), blobs, &none, 0)
	attachDiagramURL(context.Background(), nil, &ok, 0)
}

func TestEmitResult_WritesDiagram(t *testing.T) {
	out := filepath.Join(t.TempDir(), "diagram.png")

	var buf bytes.Buffer
	err := emitResult(context.Background(), &buf, nil, verifiedResult("run-1"), "json", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.NotContains(t, buf.String(), `"diagram"`)
}

func TestEmitResult_FailureReturnsError(t *testing.T) {
	var buf bytes.Buffer
	err := emitResult(context.Background(), &buf, nil, failedResult("run-2"), "json", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run run-2 failed at extraction: no flows found")

	resp := decodeResponse(t, &buf)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "run-2", resp.RunID)
}
