// Package retry provides the pause policies used between failover attempts
// of a write. The number of attempts is decided by the caller; a Retryer only
// decides how long to wait before the next one.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Retryer computes the pause before a failover attempt.
type Retryer interface {
	// Delay returns how long to wait before attempt (1-based: 1 is the
	// first failover after the initial attempt failed). lastErr is the
	// error that ended the previous attempt.
	Delay(attempt int, lastErr error) time.Duration
}

// NoDelay fails over immediately.
type NoDelay struct{}

// Delay implements Retryer
func (NoDelay) Delay(int, error) time.Duration { return 0 }

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	// InitialDelay is the pause before the first failover
	InitialDelay time.Duration

	// MaxDelay caps the pause
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier
	Multiplier float64

	// JitterFactor is the maximum jitter as a fraction of the delay (0.0 to 1.0)
	JitterFactor float64
}

// NewExponentialBackoff creates a backoff that starts at initial and doubles
// up to 20 times initial, with 30% jitter.
func NewExponentialBackoff(initial time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialDelay: initial,
		MaxDelay:     20 * initial,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}
}

// Delay implements Retryer
func (r *ExponentialBackoff) Delay(attempt int, _ error) time.Duration {
	if attempt < 1 || r.InitialDelay <= 0 {
		return 0
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.JitterFactor > 0 {
		//nolint:gosec // jitter, not security-critical
		delay += delay * r.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay)
}

// FixedDelay pauses the same amount before every failover.
type FixedDelay struct {
	Pause time.Duration
}

// NewFixedDelay creates a new fixed delay retryer
func NewFixedDelay(pause time.Duration) *FixedDelay {
	return &FixedDelay{Pause: pause}
}

// Delay implements Retryer
func (r *FixedDelay) Delay(attempt int, _ error) time.Duration {
	if attempt < 1 {
		return 0
	}
	return r.Pause
}

// Wait sleeps for the delay r assigns to attempt, returning early with the
// context error if ctx is done first.
func Wait(ctx context.Context, r Retryer, attempt int, lastErr error) error {
	if r == nil {
		return ctx.Err()
	}
	d := r.Delay(attempt, lastErr)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
