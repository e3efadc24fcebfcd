package resilience

import (
	"context"
	"math"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts       int           // Total attempts, 1 means a single call
	InitialBackoff    time.Duration // Initial backoff duration
	MaxBackoff        time.Duration // Maximum backoff duration
	BackoffMultiplier float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns a configuration that performs exactly one attempt
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableError checks if an error is retryable
type IsRetryableError func(error) bool

// OnRetry is notified before each backoff sleep
type OnRetry func(attempt int, err error, wait time.Duration)

// Retry executes fn until it succeeds, returns a non-retryable error, runs out of attempts,
// or ctx is done. The last error from fn is returned.
func Retry(ctx context.Context, fn RetryableFunc, config *RetryConfig, isRetryable IsRetryableError, onRetry OnRetry) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		wait := CalculateBackoff(attempt, config.InitialBackoff, config.MaxBackoff, config.BackoffMultiplier)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	return lastErr
}

// CalculateBackoff calculates the backoff duration for a given attempt
func CalculateBackoff(attempt int, initialBackoff time.Duration, maxBackoff time.Duration, multiplier float64) time.Duration {
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := time.Duration(float64(initialBackoff) * math.Pow(multiplier, float64(attempt)))
	if maxBackoff > 0 && backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
