package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 30 * time.Millisecond}
	testCases := []struct {
		attempt int
		expect  time.Duration
	}{
		{attempt: 1, expect: 10 * time.Millisecond},
		{attempt: 2, expect: 20 * time.Millisecond},
		{attempt: 3, expect: 30 * time.Millisecond},
		{attempt: 4, expect: 30 * time.Millisecond},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expect, policy.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
	assert.False(t, policy.Exhausted(3))
	assert.True(t, policy.Exhausted(4))
	assert.Equal(t, time.Duration(0), RetryPolicy{}.Delay(1))
}
