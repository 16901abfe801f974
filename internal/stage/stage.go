// Package stage wraps each external capability (extraction, diagram
// generation, visual verification) in a validating, bounded-retry adapter.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sells-group/statement-flow/internal/config"
	"github.com/sells-group/statement-flow/internal/resilience"
)

// Options controls a single adapter invocation.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
}

// Error is the terminal failure of an adapter after it exhausted its
// attempts. It carries no partial data.
type Error struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Backoff builds the adapter backoff policy from pipeline config.
func Backoff(cfg config.PipelineConfig) resilience.BackoffFunc {
	return resilience.FromRetryConfig(0, cfg.InitialBackoffMs, cfg.MaxBackoffMs).Backoff
}

// retry runs fn for attempts 1..opts.MaxRetries+1. Permanent errors return
// unwrapped and immediately; exhaustion is reported as *Error.
func retry[T any](ctx context.Context, name string, opts Options, backoff resilience.BackoffFunc, fn func(context.Context, resilience.Attempt) (T, error)) (T, error) {
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	cfg := resilience.RetryConfig{
		MaxAttempts: maxRetries + 1,
		Backoff:     backoff,
		OnRetry:     resilience.RetryLogger(name, "attempt"),
	}

	val, err := resilience.DoVal(ctx, cfg, fn)
	if err == nil {
		return val, nil
	}

	var ex *resilience.ExhaustedError
	if errors.As(err, &ex) {
		return val, &Error{Stage: name, Attempts: ex.Attempts, Err: ex.Err}
	}
	return val, err
}

// priorMessage renders the previous attempt's failure for corrective
// prompting.
func priorMessage(a resilience.Attempt) string {
	if a.PriorErr == nil {
		return "unknown error"
	}
	return a.PriorErr.Error()
}
