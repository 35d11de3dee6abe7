package infra

import (
	"time"
)

const (
	// Defaults used when a BackoffPolicy is constructed zero-valued.
	defaultBaseDelay = 1 * time.Second
	defaultMaxDelay  = 60 * time.Second
)

// BackoffPolicy computes bounded exponential retry delays:
// initial * 2^attempt, capped at max.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the backoff duration for a given attempt count.
// A negative attempt returns the initial delay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = defaultBaseDelay
	}
	max := p.Max
	if max <= 0 {
		max = defaultMaxDelay
	}

	if attempt < 0 {
		return initial
	}

	// 2^attempt via shift; cap early so the shift cannot overflow.
	if attempt > 30 {
		return max
	}

	delay := initial * time.Duration(1<<attempt)
	if delay > max || delay < 0 {
		return max
	}
	return delay
}

// CalculateBackoff returns the exponential backoff duration for a given
// retry count using the default policy.
func CalculateBackoff(retryCount int) time.Duration {
	return BackoffPolicy{}.Delay(retryCount)
}
