// Package retry provides exponential backoff helpers shared by the
// telemetry client's reconnection policy and data-source fetch retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides backoff configuration
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (0 = run once)
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Saturation point for the backoff curve
}

// DefaultConfig returns sensible defaults for short-lived operations
// such as data-source fetches.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Reconnect returns the backoff configuration for broker reconnection:
// 5s base doubling to a 60s ceiling, ten attempts before giving up.
func Reconnect() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 5 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// Delay returns the backoff delay before attempt n (1-based):
//
//	delay(n) = min(initial × 2^(n−1), max)
//
// The curve is monotonically non-decreasing until it saturates at max.
func (c Config) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return c.InitialDelay
	}
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return delay
}

// Exhausted reports whether attempt n (1-based) exceeds the attempt budget.
func (c Config) Exhausted(attempt int) bool {
	return c.MaxAttempts > 0 && attempt > c.MaxAttempts
}

// Do executes fn with exponential backoff retry. The context cancels both
// in-flight waits and future attempts; a pending backoff timer is released
// immediately on cancellation.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		return errors.New("retry: MaxDelay must be >= InitialDelay")
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			// Keep the attempt's error in the chain so callers can still
			// classify what went wrong before the context expired.
			return fmt.Errorf("retry cancelled after attempt %d (%v): %w", attempt, ctx.Err(), lastErr)
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
