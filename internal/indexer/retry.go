package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
}

// DefaultRetryConfig returns the default retry configuration.
// 4 attempts total (1 initial + 3 retries) with delays of roughly 250ms, 500ms, 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// RetryConfigFor builds a config allowing maxRetries retries after the
// initial attempt.
func RetryConfigFor(maxRetries int, baseDelay time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = maxRetries + 1
	if baseDelay > 0 {
		cfg.BaseDelay = baseDelay
		if cfg.MaxDelay < baseDelay {
			cfg.MaxDelay = baseDelay
		}
	}
	return cfg
}

// Retry executes the operation with exponential backoff retry using the
// default configuration.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig executes the operation with the specified retry configuration.
// Only errors marked retryable are retried.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) || ctx.Err() != nil {
			return result, err
		}

		// Don't delay after the last attempt
		if attempt < attempts-1 {
			timer := time.NewTimer(calculateDelay(attempt, cfg.BaseDelay, cfg.MaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

// calculateDelay calculates the delay for the given attempt using exponential backoff with jitter.
func calculateDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << attempt) // 2^attempt * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	// Jitter: random duration in [delay/2, delay).
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + rand.N(half) //nolint:gosec // G404: Jitter does not require cryptographic randomness
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// WrapRetryable marks an error as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable returns true if the error should trigger a retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var re *retryableError
	return errors.As(err, &re)
}
