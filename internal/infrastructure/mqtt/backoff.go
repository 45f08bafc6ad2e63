package mqtt

import (
	"math/rand/v2"
	"time"
)

// backoff computes reconnect delays: initial * 2^attempt capped at max,
// then jittered into [d/2, d].
type backoff struct {
	initial time.Duration
	max     time.Duration
}

func newBackoff(initialSeconds, maxSeconds int) backoff {
	b := backoff{
		initial: time.Duration(initialSeconds) * time.Second,
		max:     time.Duration(maxSeconds) * time.Second,
	}
	if b.initial <= 0 {
		b.initial = defaultInitialDelay
	}
	if b.max < b.initial {
		b.max = b.initial
	}
	return b
}

// delay returns the wait before the given zero-based attempt.
func (b backoff) delay(attempt int) time.Duration {
	d := b.initial
	for i := 0; i < attempt && d < b.max; i++ {
		d *= 2
	}
	if d > b.max {
		d = b.max
	}

	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1) //nolint:gosec // jitter, not security
}
