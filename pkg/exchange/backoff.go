package exchange

import (
	"math"
	"math/rand"
	"time"
)

// RandomSource provides random values for jitter calculation.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

type mathRandSource struct{}

func (mathRandSource) Float64() float64 { return rand.Float64() }

// DefaultRandomSource draws jitter from math/rand.
var DefaultRandomSource RandomSource = mathRandSource{}

// Backoff computes MRP retransmission timeouts:
//
//	t = i * 1.6^max(0, n-1) * (1 + r*0.25),  i = base * 1.1
//
// where n is the number of transmissions that precede the one being timed
// and r is drawn from the RandomSource. The first two retries wait the same
// time; later ones grow exponentially.
type Backoff struct {
	random RandomSource
}

// NewBackoff creates a Backoff. If random is nil, DefaultRandomSource is
// used.
func NewBackoff(random RandomSource) *Backoff {
	if random == nil {
		random = DefaultRandomSource
	}
	return &Backoff{random: random}
}

// Interval returns the timeout for transmission attempt n, jitter included.
func (b *Backoff) Interval(base time.Duration, attempt int) time.Duration {
	return backoffInterval(base, attempt, b.random.Float64())
}

// Bounds returns the smallest and largest timeout Interval can produce for
// attempt n.
func (b *Backoff) Bounds(base time.Duration, attempt int) (lo, hi time.Duration) {
	return backoffInterval(base, attempt, 0), backoffInterval(base, attempt, 1)
}

func backoffInterval(base time.Duration, attempt int, r float64) time.Duration {
	exponent := attempt - MRPBackoffThreshold
	if exponent < 0 {
		exponent = 0
	}
	i := float64(base) * MRPBackoffMargin
	return time.Duration(i * math.Pow(MRPBackoffBase, float64(exponent)) * (1 + r*MRPBackoffJitter))
}
