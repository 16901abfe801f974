package store

import (
	"context"
	"errors"

	"github.com/sells-group/statement-flow/internal/model"
)

// ErrNotFound is returned by mutations that target a missing run.
var ErrNotFound = errors.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RunUpdate carries the mutable fields of a run. Empty paths and a nil
// Error leave the stored values unchanged.
type RunUpdate struct {
	Status      model.RunStatus
	Retries     int
	InputPath   string
	DiagramPath string
	Error       *model.PipelineError
}

// Store defines the persistence interface for pipeline runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, status model.RunStatus) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, update RunUpdate) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	DeleteRun(ctx context.Context, runID string) error

	// Flows
	InsertFlows(ctx context.Context, runID string, flows []model.Flow) error
	ListFlows(ctx context.Context, runID string) ([]model.Flow, error)

	// Verification attempts
	InsertVerification(ctx context.Context, rec model.VerificationRecord) (*model.VerificationRecord, error)
	GetLatestVerification(ctx context.Context, runID string) (*model.VerificationRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// flowColumns is the column order shared by both backends.
var flowColumns = []string{"id", "run_id", "position", "source", "target", "amount", "category", "line_item", "statement_section"}

func flowMetadata(lineItem, section string) *model.FlowMetadata {
	if lineItem == "" && section == "" {
		return nil
	}
	return &model.FlowMetadata{LineItem: lineItem, StatementSection: section}
}

func flowMetadataColumns(f model.Flow) (string, string) {
	if f.Metadata == nil {
		return "", ""
	}
	return f.Metadata.LineItem, f.Metadata.StatementSection
}
