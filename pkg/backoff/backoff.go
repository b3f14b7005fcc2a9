// Package backoff computes retry delays for failed network attempts.
// All strategies clamp their result to [0, max delay]; the jittered
// strategies draw from an injectable random source so tests can seed them.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Strategy selects the delay growth curve.
type Strategy string

const (
	// Constant returns the base delay for every attempt.
	Constant Strategy = "constant"
	// Linear grows the delay by one base delay per attempt.
	Linear Strategy = "linear"
	// Exponential doubles the delay each attempt.
	Exponential Strategy = "exponential"
	// ExponentialWithJitter multiplies the exponential delay by a uniform
	// random factor in [0.5, 1.5].
	ExponentialWithJitter Strategy = "exponentialWithJitter"
	// FullJitter draws uniformly from [0, exponential delay].
	FullJitter Strategy = "fullJitter"
	// EqualJitter keeps half the exponential delay and randomizes the rest.
	EqualJitter Strategy = "equalJitter"
)

// ParseStrategy maps a strategy name to a Strategy.
// Unknown names fall back to ExponentialWithJitter, the default used by
// the retry evaluator.
func ParseStrategy(name string) Strategy {
	switch Strategy(name) {
	case Constant, Linear, Exponential, ExponentialWithJitter, FullJitter, EqualJitter:
		return Strategy(name)
	default:
		return ExponentialWithJitter
	}
}

// lockedRand guards the shared default source; math/rand sources are not
// safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

var defaultRand = &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

// Calculator computes delays for one retry envelope.
// The zero value is not usable; construct with New.
type Calculator struct {
	base     time.Duration
	max      time.Duration
	strategy Strategy
	rng      func() float64
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithRand replaces the random source used by the jittered strategies.
// Intended for tests that need deterministic delays.
func WithRand(rng *rand.Rand) Option {
	return func(c *Calculator) {
		c.rng = rng.Float64
	}
}

// New creates a Calculator for the given envelope.
// If max < base, max is raised to base so the clamp never inverts.
func New(base, max time.Duration, strategy Strategy, opts ...Option) *Calculator {
	if base < 0 {
		base = 0
	}
	if max < base {
		max = base
	}
	c := &Calculator{
		base:     base,
		max:      max,
		strategy: strategy,
		rng:      defaultRand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Delay returns the delay before the next attempt.
// attempt is the zero-based count of failures so far; negative values are
// clamped to 0 since callers drive this from a monotonic counter.
func (c *Calculator) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	var d float64
	switch c.strategy {
	case Constant:
		d = float64(c.base)
	case Linear:
		d = float64(c.base) * float64(attempt+1)
	case Exponential:
		d = c.exponential(attempt)
	case ExponentialWithJitter:
		d = c.exponential(attempt) * (0.5 + c.rng())
	case FullJitter:
		d = c.exponential(attempt) * c.rng()
	case EqualJitter:
		half := c.exponential(attempt) / 2
		d = half + half*c.rng()
	default:
		d = c.exponential(attempt) * (0.5 + c.rng())
	}

	return clamp(d, c.max)
}

// exponential returns base * 2^attempt, capped at the max delay to keep
// the intermediate math finite for large attempt counts.
func (c *Calculator) exponential(attempt int) float64 {
	d := float64(c.base) * math.Pow(2, float64(attempt))
	if d > float64(c.max) {
		return float64(c.max)
	}
	return d
}

func clamp(d float64, max time.Duration) time.Duration {
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	if d > float64(max) {
		return max
	}
	return time.Duration(d)
}

// Delay is a convenience for one-off calculations without constructing a
// Calculator.
func Delay(attempt int, base, max time.Duration, strategy Strategy) time.Duration {
	return New(base, max, strategy).Delay(attempt)
}
