package relay

import (
	"math/rand"
	"time"
)

// Backoff computes exponential reconnect delays with jitter, capped at
// max. This replaces the constant 30-second delay of an earlier
// design: a relay that is actually down should be retried with growing
// spacing rather than hammered every 30 seconds, and the jitter keeps many
// clients reconnecting to the same relay from synchronizing their retries.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

const (
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 5 * time.Minute
)

// NewBackoff returns a Backoff starting at one second and capped at five
// minutes.
func NewBackoff() *Backoff {
	return &Backoff{base: defaultBackoffBase, max: defaultBackoffMax}
}

// Next returns the delay before the next reconnect attempt and advances the
// internal attempt counter.
func (b *Backoff) Next() time.Duration {
	shift := b.attempt
	if shift > 20 {
		shift = 20
	}
	delay := b.base * time.Duration(1<<uint(shift))
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempt++

	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay/2 + jitter
}

// Reset clears the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}
