package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BackoffFunc returns the delay to wait after the given failed attempt
// (1-based) before the next one.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff returns min(initial * 2^(attempt-1), max).
func ExponentialBackoff(initial, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		delay := initial
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= max {
				return max
			}
		}
		if delay > max {
			return max
		}
		return delay
	}
}

// NoBackoff retries immediately.
func NoBackoff(int) time.Duration { return 0 }

// Attempt describes the current try handed to the retried operation.
type Attempt struct {
	// Number is 1-based.
	Number int
	// Max is the total number of attempts allowed.
	Max int
	// PriorErr is the error from the previous attempt, nil on the first.
	PriorErr error
}

// First reports whether this is the initial attempt.
func (a Attempt) First() bool { return a.Number == 1 }

// Last reports whether no attempts remain after this one.
func (a Attempt) Last() bool { return a.Number >= a.Max }

// RetryConfig controls bounded retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Values below 1 are treated as 1.
	MaxAttempts int

	// Backoff computes the sleep between attempts. Nil means NoBackoff.
	Backoff BackoffFunc

	// ShouldRetry optionally restricts which errors are retried. Errors
	// marked with Permanent are never retried regardless.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the failed attempt
	// number and its error. It is never called after the final attempt.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig matches the stage adapter policy: three attempts,
// 1s initial backoff doubling up to 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff(time.Second, 10*time.Second),
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do and DoVal return the
// unmarked error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do executes fn with retry logic according to cfg.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, a Attempt) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context, a Attempt) (struct{}, error) {
		return struct{}{}, fn(ctx, a)
	})
	return err
}

// DoVal executes fn returning a value with retry logic. A permanent error
// is returned as-is; exhausting every attempt yields an *ExhaustedError
// wrapping the last failure. Context cancellation stops retries and returns
// the last failure.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context, a Attempt) (T, error)) (T, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NoBackoff
	}

	var zero T
	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		val, err := fn(ctx, Attempt{Number: n, Max: maxAttempts, PriorErr: lastErr})
		if err == nil {
			return val, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return zero, lastErr
		}
		if n == maxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(n, err)
		}

		delay := backoff(n)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(stage, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("stage", stage),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.String("cause", string(Classify(err))),
			zap.Error(err),
		)
	}
}
