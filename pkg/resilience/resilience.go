// Package resilience provides backoff and retry primitives used by the
// supervisor's reconnection loop and by any operation that should be
// retried with exponential backoff.
package resilience

import (
	"context"
	"time"
)

// Executor represents an operation that can be retried.
type Executor func(ctx context.Context) error

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int

	// InitialBackoff is the backoff duration for the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// Multiplier increases the backoff between retries.
	Multiplier float64

	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		RetryIf:        func(err error) bool { return err != nil },
	}
}
