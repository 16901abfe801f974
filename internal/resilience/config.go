package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. maxRetries counts
// retries after the first attempt; non-positive backoff values fall back to
// the defaults.
func FromRetryConfig(maxRetries, initialBackoffMs, maxBackoffMs int) RetryConfig {
	initial := time.Second
	if initialBackoffMs > 0 {
		initial = time.Duration(initialBackoffMs) * time.Millisecond
	}
	maxBackoff := 10 * time.Second
	if maxBackoffMs > 0 {
		maxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryConfig{
		MaxAttempts: maxRetries + 1,
		Backoff:     ExponentialBackoff(initial, maxBackoff),
	}
}
