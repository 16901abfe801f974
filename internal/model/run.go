package model

import (
	"time"
)

// RunStatus represents the persisted state of a pipeline run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run is the orchestrator's working record.
type Run struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	Retries     int       `json:"retries"`
	InputPath   string    `json:"input_path,omitempty"`
	DiagramPath string    `json:"diagram_path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Error is set when the run ended in the Failed state.
	Error *PipelineError `json:"error,omitempty"`
}

// VerificationRecord is a persisted verification attempt.
type VerificationRecord struct {
	ID          string             `json:"id"`
	RunID       string             `json:"run_id"`
	Attempt     int                `json:"attempt"`
	DiagramPath string             `json:"diagram_path"`
	Report      VerificationReport `json:"report"`
	CreatedAt   time.Time          `json:"created_at"`
}

// ResultMetadata summarises the processing of a run.
type ResultMetadata struct {
	ProcessingTimeMs int64 `json:"processing_time_ms"`
	Retries          int   `json:"retries"`
	FlowsExtracted   int   `json:"flows_extracted"`
}

// PipelineResult is the terminal output of a run. It is always populated,
// even on failure.
type PipelineResult struct {
	RunID              string              `json:"run_id,omitempty"`
	Success            bool                `json:"success"`
	Diagram            []byte              `json:"diagram"`
	DiagramPath        string              `json:"diagram_path,omitempty"`
	Reasoning          string              `json:"reasoning"`
	Accuracy           float64             `json:"accuracy"`
	Metadata           ResultMetadata      `json:"metadata"`
	Flows              []Flow              `json:"flows,omitempty"`
	VerificationReport *VerificationReport `json:"verification_report,omitempty"`
	StatementMetadata  *StatementMetadata  `json:"statement_metadata,omitempty"`
	Error              *PipelineError      `json:"error,omitempty"`
}
