package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 30 * time.Second,
		MaxDelay:     3 * time.Minute,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 0},
		{attempt: 1, expected: 30 * time.Second},
		{attempt: 2, expected: 60 * time.Second},
		{attempt: 3, expected: 2 * time.Minute},
		{attempt: 4, expected: 3 * time.Minute}, // capped
		{attempt: 10, expected: 3 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, policy.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.True(t, policy.ShouldRetry(1))
	assert.True(t, policy.ShouldRetry(2))
	assert.False(t, policy.ShouldRetry(3))
	assert.False(t, policy.ShouldRetry(4))
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 30*time.Second, policy.InitialDelay)
}
