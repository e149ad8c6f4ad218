package messaging

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls redelivery of nacked messages
type RetryPolicy struct {
	MaxRetries   int           `yaml:"maxRetries" mapstructure:"max_retries"`
	InitialDelay time.Duration `yaml:"initialDelay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `yaml:"maxDelay" mapstructure:"max_delay"`
}

// DefaultRetryPolicy returns 3 retries starting at 100ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the wait before redelivery attempt (1-based); delays double
// per attempt up to MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = backoff.DefaultMaxInterval
	}
	b.Reset()
	ret := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		ret = b.NextBackOff()
	}
	return ret
}

// Exhausted reports whether attempt exceeds the retry budget
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt > p.MaxRetries
}
