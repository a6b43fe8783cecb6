package epavic

import (
	"math/rand/v2"
	"time"
)

// rateLimitBackOff implements the pause policy for rate-limited requests:
// the nth pause lasts n*base plus a random duration below jitter. The
// linear growth bounds total wait while the jitter spreads retries from
// installations polling the same upstream.
type rateLimitBackOff struct {
	base    time.Duration
	jitter  time.Duration
	attempt int
}

func newRateLimitBackOff(base, jitter time.Duration) *rateLimitBackOff {
	return &rateLimitBackOff{base: base, jitter: jitter}
}

// NextBackOff returns the next pause duration.
func (b *rateLimitBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := time.Duration(b.attempt) * b.base
	if b.jitter > 0 {
		d += rand.N(b.jitter)
	}
	return d
}

// Reset restarts the back-off sequence.
func (b *rateLimitBackOff) Reset() {
	b.attempt = 0
}
