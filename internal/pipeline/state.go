package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/document"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/stage"
)

// State is a run's position in the orchestrator state machine.
type State int

const (
	StateCreated State = iota
	StateParsing
	StateExtracting
	StateGenerating
	StateVerifying
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateCreated:    "created",
	StateParsing:    "parsing",
	StateExtracting: "extracting",
	StateGenerating: "generating",
	StateVerifying:  "verifying",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the state machine stops at s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Stage is the error tag for failures raised while in s.
func (s State) Stage() model.Stage {
	switch s {
	case StateExtracting:
		return model.StageExtraction
	case StateGenerating:
		return model.StageGeneration
	case StateVerifying, StateCompleted:
		return model.StageVerification
	default:
		return model.StageParsing
	}
}

// accumulator holds everything a run has produced so far. Fields are only
// set after the step that produces them succeeds, so a failure result reads
// the last known good values directly.
type accumulator struct {
	runID          string
	inputPath      string
	parsed         document.Parsed
	analysis       *model.AnalysisOutput
	diagram        *stage.Diagram
	diagramPath    string
	report         *model.VerificationReport
	retries        int
	flowsExtracted int
}

// run is the per-invocation state: current state, accumulator and the
// input buffer.
type run struct {
	state    State
	acc      accumulator
	input    []byte
	existing bool
	log      *zap.Logger
}

func (r *run) transition(next State) {
	if next == r.state {
		return
	}
	r.log.Debug("pipeline: transition",
		zap.Stringer("from", r.state),
		zap.Stringer("to", next),
	)
	r.state = next
}

func (r *run) bindRunID(id string) {
	r.acc.runID = id
	r.log = r.log.With(zap.String("run_id", id))
}
