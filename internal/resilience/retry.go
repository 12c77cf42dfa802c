package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects how the delay grows between attempts.
type BackoffStrategy int

const (
	BackoffFixed BackoffStrategy = iota
	BackoffLinear
	BackoffExponential
)

func (s BackoffStrategy) String() string {
	switch s {
	case BackoffFixed:
		return "fixed"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// RetryConfig configures a Retry.
type RetryConfig struct {
	MaxAttempts  int             `yaml:"maxAttempts"`
	InitialDelay time.Duration   `yaml:"initialDelay"`
	MaxDelay     time.Duration   `yaml:"maxDelay"`
	Multiplier   float64         `yaml:"multiplier"`
	Jitter       bool            `yaml:"jitter"`
	Backoff      BackoffStrategy `yaml:"-"`
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool `yaml:"-"`
}

// DefaultRetryConfig returns three exponential attempts starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		Backoff:      BackoffExponential,
	}
}

// RetryError is returned once every attempt failed.
type RetryError struct {
	Attempts  int
	LastError error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *RetryError) Unwrap() error {
	return e.LastError
}

// Retry runs an operation until it succeeds, fails permanently or runs out
// of attempts.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry policy. Non-positive attempts mean one attempt.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	if config.Multiplier <= 0 {
		config.Multiplier = 2
	}

	return &Retry{config: config}
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Do calls fn until it returns nil. A non-retryable error is returned as
// is; exhausting the attempts returns a *RetryError.
func (r *Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var last error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if r.config.Retryable != nil && !r.config.Retryable(err) {
			return err
		}

		last = err

		if attempt == r.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(r.delay(attempt))

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}

	return &RetryError{Attempts: r.config.MaxAttempts, LastError: last}
}

func (r *Retry) delay(attempt int) time.Duration {
	var d time.Duration

	switch r.config.Backoff {
	case BackoffFixed:
		d = r.config.InitialDelay
	case BackoffLinear:
		d = r.config.InitialDelay * time.Duration(attempt)
	default:
		d = time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	}

	// +/-25%
	if r.config.Jitter && d > 0 {
		quarter := float64(d) / 4
		d += time.Duration(quarter * (2*rand.Float64() - 1))
	}

	if r.config.MaxDelay > 0 && d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	return d
}
