package gorillaws

import (
	"math"
	"math/rand"
	"time"
)

// Retryer decides the delay before the next reconnect attempt. attempt is
// zero-based; the second return value is false when retrying should stop.
type Retryer interface {
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful connection.
	Reset()
}

// ExponentialBackoffRetryer grows the delay exponentially up to MaxDelay,
// with optional jitter to avoid reconnect stampedes.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxRetries caps the attempts; 0 retries forever.
	MaxRetries int

	// JitterFactor is the maximum jitter as a fraction of the delay; 0
	// disables jitter.
	JitterFactor float64
}

// NewExponentialBackoffRetryer returns a retryer with the default schedule:
// 1s initial delay doubling up to 30s, 30% jitter, retrying forever.
func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}
	if r.JitterFactor > 0 {
		//nolint:gosec // jitter is not security-critical
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}
	return time.Duration(delay), true
}

func (r *ExponentialBackoffRetryer) Reset() {}
