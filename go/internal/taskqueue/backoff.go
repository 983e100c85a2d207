package taskqueue

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: Base * 2^(attempt-1), capped at Max.
// With Jitter the delay is drawn uniformly from [0, d].
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool

	// rand returns a value in [0, n). Nil means math/rand/v2.
	rand func(n int64) int64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:   30 * time.Second,
		Max:    10 * time.Minute,
		Jitter: true,
	}
}

// Delay returns the wait before retrying after the given failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if (b.Max > 0 && d >= b.Max) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	if !b.Jitter || d <= 0 {
		return d
	}
	randInt := b.rand
	if randInt == nil {
		randInt = rand.Int64N
	}
	return time.Duration(randInt(int64(d) + 1))
}
