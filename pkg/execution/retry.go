package execution

import (
	"math"
	"time"
)

// RetryPolicy bounds step attempts and spaces retries with exponential
// backoff. Retries are delivered through resume schedules rather than
// in-process sleeps, so a retrying step never occupies a worker.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is applied to the delay after each retry.
	Multiplier float64
}

// DefaultRetryPolicy returns the policy applied to steps with no explicit
// configuration.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 30 * time.Second,
		MaxDelay:     30 * time.Minute,
		Multiplier:   2.0,
	}
}

// NextDelay calculates the backoff delay after the given failed attempt.
// Attempt is 1-indexed: attempt 1 yields InitialDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := math.Pow(p.Multiplier, float64(attempt-1))
	delay := time.Duration(float64(p.InitialDelay) * multiplier)

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	return delay
}

// ShouldRetry reports whether another attempt should be made after the given
// failed attempt number.
func (p *RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}
