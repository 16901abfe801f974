// Package pipeline sequences extraction, diagram generation and
// verification for one statement, with a bounded regeneration cycle.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/blob"
	"github.com/sells-group/statement-flow/internal/config"
	"github.com/sells-group/statement-flow/internal/document"
	"github.com/sells-group/statement-flow/internal/model"
	"github.com/sells-group/statement-flow/internal/resilience"
	"github.com/sells-group/statement-flow/internal/stage"
	"github.com/sells-group/statement-flow/internal/store"
)

// MaxVerificationAttempts caps the regeneration cycle.
const MaxVerificationAttempts = 3

// errNotVerified marks a verification that ran but did not pass. It drives
// the regeneration cycle and never reaches callers.
var errNotVerified = errors.New("diagram did not pass verification")

// Preprocessor validates a statement and extracts its text layer.
type Preprocessor interface {
	Parse(ctx context.Context, data []byte) (document.Parsed, error)
}

// Runner executes the pipeline for one document.
type Runner interface {
	Run(ctx context.Context, input []byte, opts ...RunOption) *model.PipelineResult
}

// RunOption customizes a single Run call.
type RunOption func(*run)

// WithRunID continues a run record created by the caller (status pending)
// instead of creating a new one.
func WithRunID(id string) RunOption {
	return func(r *run) {
		if id == "" {
			return
		}
		r.existing = true
		r.bindRunID(id)
	}
}

// Pipeline orchestrates a statement through its stages.
type Pipeline struct {
	cfg          config.PipelineConfig
	attempts     int
	store        store.Store
	blobs        blob.Store
	preprocessor Preprocessor
	extractor    stage.Extractor
	generator    stage.Generator
	verifier     stage.Verifier
	now          func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(
	cfg config.PipelineConfig,
	st store.Store,
	blobs blob.Store,
	pre Preprocessor,
	extractor stage.Extractor,
	generator stage.Generator,
	verifier stage.Verifier,
) *Pipeline {
	if cfg.AccuracyThreshold <= 0 {
		cfg.AccuracyThreshold = model.DefaultAccuracyThreshold
	}
	attempts := min(max(cfg.MaxVerificationAttempts, 1), MaxVerificationAttempts)
	return &Pipeline{
		cfg:          cfg,
		attempts:     attempts,
		store:        st,
		blobs:        blobs,
		preprocessor: pre,
		extractor:    extractor,
		generator:    generator,
		verifier:     verifier,
		now:          time.Now,
	}
}

// Run takes input through the state machine and always returns a
// populated result. Failures are reported in result.Error.
func (p *Pipeline) Run(ctx context.Context, input []byte, opts ...RunOption) *model.PipelineResult {
	start := p.now()
	r := &run{state: StateCreated, input: input, log: zap.L()}
	for _, opt := range opts {
		opt(r)
	}
	r.log.Info("pipeline: starting run", zap.Int("bytes", len(input)))

	var perr *model.PipelineError
	for !r.state.Terminal() {
		next, err := p.step(ctx, r)
		if err != nil {
			perr = err
			r.log.Error("pipeline: run failed",
				zap.Stringer("state", r.state),
				zap.String("code", string(err.Code)),
				zap.String("stage", string(err.Stage)),
				zap.Error(err),
			)
			next = StateFailed
		}
		r.transition(next)
	}

	elapsed := p.now().Sub(start)
	if perr != nil {
		p.markFailed(ctx, r, perr)
		return failureResult(r, perr, elapsed)
	}

	p.markCompleted(ctx, r)
	res := completedResult(r, elapsed)
	r.log.Info("pipeline: run complete",
		zap.Bool("success", res.Success),
		zap.Float64("accuracy", res.Accuracy),
		zap.Int("retries", res.Metadata.Retries),
		zap.Int64("duration_ms", res.Metadata.ProcessingTimeMs),
	)
	return res
}

// step applies the transition function for the current state.
func (p *Pipeline) step(ctx context.Context, r *run) (State, *model.PipelineError) {
	switch r.state {
	case StateCreated:
		return p.accept(r)
	case StateParsing:
		return p.parse(ctx, r)
	case StateExtracting:
		return p.extract(ctx, r)
	case StateGenerating:
		return p.regenerate(ctx, r)
	default:
		return StateFailed, model.NewPipelineError(model.ErrCodeUnknown, r.state.Stage(),
			eris.Errorf("pipeline: no transition from %s", r.state))
	}
}

// accept: Created -> Parsing.
func (p *Pipeline) accept(r *run) (State, *model.PipelineError) {
	if len(r.input) == 0 {
		return StateFailed, model.NewPipelineError(model.ErrCodePDF, model.StageParsing,
			eris.Wrap(document.ErrMalformed, "empty input"))
	}
	if !document.LooksLikePDF(r.input) {
		return StateFailed, model.NewPipelineError(model.ErrCodePDF, model.StageParsing,
			eris.Wrap(document.ErrMalformed, "input is not a PDF document"))
	}
	return StateParsing, nil
}

// parse: Parsing -> Extracting. Preprocesses the document, persists the
// run record and uploads the input.
func (p *Pipeline) parse(ctx context.Context, r *run) (State, *model.PipelineError) {
	parsed, err := p.preprocessor.Parse(ctx, r.input)
	if err != nil {
		if errors.Is(err, document.ErrMalformed) {
			return StateFailed, model.NewPipelineError(model.ErrCodePDF, model.StageParsing, err)
		}
		return StateFailed, model.NewPipelineError(model.ErrCodeUnknown, model.StageParsing, err)
	}

	runID := r.acc.runID
	if !r.existing {
		rec, err := p.store.CreateRun(ctx, model.RunStatusProcessing)
		if err != nil {
			return StateFailed, persistenceError(model.StageParsing, err, "create run")
		}
		runID = rec.ID
	}

	inputPath, err := p.blobs.PutObject(ctx, r.input, blob.InputKey(runID))
	if err != nil {
		return StateFailed, persistenceError(model.StageParsing, err, "upload input")
	}
	if err := p.store.UpdateRunStatus(ctx, runID, store.RunUpdate{
		Status:    model.RunStatusProcessing,
		InputPath: inputPath,
	}); err != nil {
		return StateFailed, persistenceError(model.StageParsing, err, "record input")
	}

	if !r.existing {
		r.bindRunID(runID)
	}
	r.acc.parsed = parsed
	r.acc.inputPath = inputPath
	r.log.Info("pipeline: document accepted",
		zap.Bool("scanned", parsed.IsScanned),
		zap.Int("text_chars", len(parsed.Text)),
	)
	return StateExtracting, nil
}

// extract: Extracting -> Generating.
func (p *Pipeline) extract(ctx context.Context, r *run) (State, *model.PipelineError) {
	out, err := p.extractor.Extract(ctx, stage.ExtractionRequest{
		Text:      r.acc.parsed.Text,
		IsScanned: r.acc.parsed.IsScanned,
		PDF:       r.acc.parsed.Raw,
	}, stage.Options{MaxRetries: p.cfg.ExtractionRetries})
	if err != nil {
		return StateFailed, model.NewPipelineError(model.ErrCodeExtraction, model.StageExtraction, err)
	}

	r.acc.analysis = out
	r.acc.flowsExtracted = len(out.Flows)
	r.log.Info("pipeline: flows extracted",
		zap.Int("flows", len(out.Flows)),
		zap.Float64("confidence", out.Confidence),
		zap.String("company", out.Metadata.Company),
	)
	return StateGenerating, nil
}

// regenerate: Generating -> Verifying -> Completed, repeating generation
// and verification until a diagram passes or the cycle is exhausted.
func (p *Pipeline) regenerate(ctx context.Context, r *run) (State, *model.PipelineError) {
	if err := p.store.InsertFlows(ctx, r.acc.runID, r.acc.analysis.Flows); err != nil {
		return StateFailed, persistenceError(model.StageGeneration, err, "insert flows")
	}

	cfg := resilience.RetryConfig{
		MaxAttempts: p.attempts,
		Backoff:     resilience.NoBackoff,
		OnRetry: func(attempt int, err error) {
			r.acc.retries++
			r.log.Info("pipeline: regenerating diagram",
				zap.Int("attempt", attempt),
				zap.Int("retries", r.acc.retries),
				zap.Error(err),
			)
			r.transition(StateGenerating)
		},
	}

	_, err := resilience.DoVal(ctx, cfg, func(ctx context.Context, a resilience.Attempt) (*model.VerificationReport, error) {
		return p.cycleAttempt(ctx, r, a)
	})
	if err == nil {
		return StateCompleted, nil
	}

	var perr *model.PipelineError
	if errors.As(err, &perr) {
		return StateFailed, perr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return StateFailed, model.NewPipelineError(model.ErrCodeUnknown, r.state.Stage(),
			eris.Wrap(ctxErr, "pipeline: regeneration interrupted"))
	}
	var ex *resilience.ExhaustedError
	if errors.As(err, &ex) && errors.Is(ex.Err, errNotVerified) {
		r.log.Warn("pipeline: verification never passed",
			zap.Int("attempts", ex.Attempts),
			zap.Int("retries", r.acc.retries),
		)
		return StateCompleted, nil
	}
	return StateFailed, model.AsPipelineError(err, r.state.Stage())
}

// cycleAttempt generates, stores and verifies one diagram. Errors wrapped
// with resilience.Permanent end the cycle; anything else consumes the
// attempt.
func (p *Pipeline) cycleAttempt(ctx context.Context, r *run, a resilience.Attempt) (*model.VerificationReport, error) {
	log := r.log.With(zap.Int("attempt", a.Number))
	flows := r.acc.analysis.Flows

	diagram, err := p.generator.Generate(ctx, stage.GenerationRequest{
		Flows:    flows,
		Metadata: r.acc.analysis.Metadata,
	}, stage.Options{MaxRetries: p.cfg.GenerationRetries})
	if err != nil {
		return nil, resilience.Permanent(model.NewPipelineError(model.ErrCodeGeneration, model.StageGeneration, err))
	}

	diagramPath, err := p.blobs.PutObject(ctx, diagram.Data, blob.DiagramKey(r.acc.runID, a.Number, diagram.MimeType))
	if err != nil {
		return nil, resilience.Permanent(persistenceError(model.StageGeneration, err, "upload diagram"))
	}
	r.acc.diagram = diagram
	r.acc.diagramPath = diagramPath
	r.transition(StateVerifying)

	report, err := p.verifier.Verify(ctx, stage.VerificationRequest{
		Diagram:   diagram.Data,
		MimeType:  diagram.MimeType,
		Flows:     flows,
		Threshold: p.cfg.AccuracyThreshold,
	}, stage.Options{MaxRetries: 0})
	if err != nil {
		if a.Last() {
			return nil, resilience.Permanent(model.NewPipelineError(model.ErrCodeVerification, model.StageVerification, err))
		}
		log.Warn("pipeline: verification attempt failed", zap.Error(err))
		return nil, err
	}
	r.acc.report = report

	if _, err := p.store.InsertVerification(ctx, model.VerificationRecord{
		RunID:       r.acc.runID,
		Attempt:     a.Number,
		DiagramPath: diagramPath,
		Report:      *report,
	}); err != nil {
		return nil, resilience.Permanent(persistenceError(model.StageVerification, err, "insert verification"))
	}

	if !report.Passed {
		log.Info("pipeline: diagram rejected",
			zap.Int("discrepancies", len(report.Discrepancies)),
			zap.Float64("accuracy", report.OverallAccuracy),
		)
		return report, eris.Wrapf(errNotVerified, "%d discrepancies at accuracy %.4f",
			len(report.Discrepancies), report.OverallAccuracy)
	}
	return report, nil
}

// markCompleted persists the terminal status of a run whose cycle ran to
// the end. The status mirrors whether the last report passed.
func (p *Pipeline) markCompleted(ctx context.Context, r *run) {
	status := model.RunStatusFailed
	if r.acc.report != nil && r.acc.report.Passed {
		status = model.RunStatusCompleted
	}
	p.updateStatus(ctx, r, store.RunUpdate{
		Status:      status,
		Retries:     r.acc.retries,
		DiagramPath: r.acc.diagramPath,
	})
}

// markFailed is best effort: a failed update is logged and never replaces
// the original error.
func (p *Pipeline) markFailed(ctx context.Context, r *run, perr *model.PipelineError) {
	if r.acc.runID == "" {
		return
	}
	p.updateStatus(ctx, r, store.RunUpdate{
		Status:      model.RunStatusFailed,
		Retries:     r.acc.retries,
		DiagramPath: r.acc.diagramPath,
		Error:       perr,
	})
}

func (p *Pipeline) updateStatus(ctx context.Context, r *run, update store.RunUpdate) {
	if err := p.store.UpdateRunStatus(ctx, r.acc.runID, update); err != nil {
		r.log.Warn("pipeline: failed to update status",
			zap.String("status", string(update.Status)),
			zap.Error(err),
		)
	}
}

func persistenceError(st model.Stage, err error, action string) *model.PipelineError {
	return model.NewPipelineError(model.ErrCodeUnknown, st, eris.Wrapf(err, "pipeline: %s", action))
}
