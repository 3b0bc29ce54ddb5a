package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// TrackingCodeGenerator produces public tracking codes of the form
// PREFIX + yy + mm + six random digits, e.g. TACDRA2508123456. The clock and
// the digit source are injectable so tests can pin both.
type TrackingCodeGenerator struct {
	prefix string
	now    func() time.Time
	suffix func() string
}

// TrackingOption configures a TrackingCodeGenerator.
type TrackingOption func(*TrackingCodeGenerator)

// WithClock overrides the generator clock.
func WithClock(now func() time.Time) TrackingOption {
	return func(g *TrackingCodeGenerator) {
		g.now = now
	}
}

// WithSuffix overrides the random digit source.
func WithSuffix(suffix func() string) TrackingOption {
	return func(g *TrackingCodeGenerator) {
		g.suffix = suffix
	}
}

// NewTrackingCodeGenerator builds a generator with the given code prefix.
func NewTrackingCodeGenerator(prefix string, opts ...TrackingOption) *TrackingCodeGenerator {
	g := &TrackingCodeGenerator{
		prefix: prefix,
		now:    time.Now,
		suffix: randomDigits,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh candidate code. Uniqueness is enforced by the
// database constraint, not here; callers retry on collision.
func (g *TrackingCodeGenerator) Generate() string {
	now := g.now()
	return fmt.Sprintf("%s%02d%02d%s", g.prefix, now.Year()%100, int(now.Month()), g.suffix())
}

func randomDigits() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// fall back to a time-derived suffix rather than panicking.
		return fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("%06d", n.Int64())
}
