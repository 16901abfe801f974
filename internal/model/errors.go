package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a pipeline failure.
type ErrorCode string

const (
	ErrCodePDF          ErrorCode = "PDF_ERROR"
	ErrCodeExtraction   ErrorCode = "EXTRACTION_ERROR"
	ErrCodeGeneration   ErrorCode = "GENERATION_ERROR"
	ErrCodeVerification ErrorCode = "VERIFICATION_ERROR"
	ErrCodeUnknown      ErrorCode = "UNKNOWN_ERROR"
)

// Recoverable reports whether retrying the whole run may succeed.
func (c ErrorCode) Recoverable() bool {
	return c != ErrCodeUnknown
}

// Stage names the pipeline stage an error surfaced from.
type Stage string

const (
	StageParsing      Stage = "parsing"
	StageExtraction   Stage = "extraction"
	StageGeneration   Stage = "generation"
	StageVerification Stage = "verification"
)

// PipelineError is the tagged error value produced at the orchestrator
// boundary.
type PipelineError struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Stage       Stage     `json:"stage"`
	Recoverable bool      `json:"recoverable"`

	cause error
}

// NewPipelineError tags cause with code and stage.
func NewPipelineError(code ErrorCode, stage Stage, cause error) *PipelineError {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &PipelineError{
		Code:        code,
		Message:     msg,
		Stage:       stage,
		Recoverable: code.Recoverable(),
		cause:       cause,
	}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Code, e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// AsPipelineError extracts a PipelineError from err's chain. Untagged
// errors are wrapped as UNKNOWN_ERROR at the given stage.
func AsPipelineError(err error, stage Stage) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewPipelineError(ErrCodeUnknown, stage, err)
}
