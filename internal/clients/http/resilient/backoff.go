package resilient

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxShift caps the exponent so base<<attempt cannot overflow.
const maxShift = 30

var _ backoff.BackOff = (*jitterBackOff)(nil)

// jitterBackOff yields base*2^attempt plus a uniform jitter in [0, maxJitter).
type jitterBackOff struct {
	base      time.Duration
	maxJitter time.Duration
	random    func() float64
	attempt   int
}

func newJitterBackOff(base, maxJitter time.Duration, random func() float64) *jitterBackOff {
	if random == nil {
		random = rand.Float64
	}
	return &jitterBackOff{base: base, maxJitter: maxJitter, random: random}
}

func (b *jitterBackOff) NextBackOff() time.Duration {
	shift := b.attempt
	if shift > maxShift {
		shift = maxShift
	}
	b.attempt++
	delay := b.base << shift
	if b.maxJitter > 0 {
		delay += time.Duration(b.random() * float64(b.maxJitter))
	}
	return delay
}

func (b *jitterBackOff) Reset() {
	b.attempt = 0
}
