package worker

import "time"

// Backoff is a pure retry-delay policy, kept free of I/O so retry timing
// is unit-testable without real waiting.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the next attempt: base * 2^attempts,
// capped at Max.
func (b Backoff) Delay(attempts int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Minute
	}
	if attempts < 0 {
		attempts = 0
	}

	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
