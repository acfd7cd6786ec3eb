package resilience

import "time"

// Backoff is a stateful exponential backoff counter: initial duration,
// doubling (or by Factor) on every call to Next, capped at Max, and
// resettable to the initial value after a successful operation. Unlike
// ExponentialBackoff, which is stateless and takes an attempt number, Backoff
// is built for the supervisor's reconnect loop where the "attempt number"
// spans multiple distinct fault layers and is easiest to track as state.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	current time.Duration
}

// NewBackoff returns a Backoff ready to produce its first (initial) duration.
func NewBackoff(initial, max time.Duration, factor float64) *Backoff {
	if factor <= 1 {
		factor = 2
	}
	return &Backoff{Initial: initial, Max: max, Factor: factor, current: initial}
}

// Next returns the duration to sleep for this attempt, then advances the
// internal state toward the next (larger, capped) duration.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Initial
	}
	d := b.current
	next := time.Duration(float64(b.current) * b.Factor)
	if next > b.Max {
		next = b.Max
	}
	b.current = next
	return d
}

// Reset returns the backoff to its initial duration, e.g. after a
// successful loop iteration or a successful reconnect.
func (b *Backoff) Reset() {
	b.current = b.Initial
}
