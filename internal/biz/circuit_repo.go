package biz

import (
	"context"

	"PolicyLane/internal/model"
)

// CircuitStateRepo defines per-key persistence of serialized circuit
// state. Following Kratos v2 DDD architecture, the interface is defined in
// biz layer; implementations live in the data layer (memory and Redis).
//
// Implementations must serialize read-modify-write per key: the governor
// loads a blob, evolves it through the pure evaluator, and stores it back.
type CircuitStateRepo interface {
	// Load returns the serialized state for key, or nil when absent.
	// A nil blob parses to a fresh closed circuit.
	Load(ctx context.Context, key string) ([]byte, error)

	// Store persists the serialized state for key.
	Store(ctx context.Context, key string, state []byte) error

	// Delete removes the state for key (manual reset).
	Delete(ctx context.Context, key string) error

	// Keys returns the keys with live circuit state.
	Keys(ctx context.Context) ([]string, error)

	// WithLock runs fn while holding the per-key mutation lock, so
	// concurrent governors targeting the same key never interleave a
	// read-modify-write.
	WithLock(key string, fn func() error) error
}

// RateWindowRepo defines fixed-window request counting per function.
type RateWindowRepo interface {
	// IncrementWindow bumps the counter for the function's current window
	// and returns the new count. The window length sets the counter TTL.
	IncrementWindow(ctx context.Context, function string, windowSeconds int) (int, error)

	// WindowCount returns the current window counter without incrementing.
	WindowCount(ctx context.Context, function string) (int, error)
}

// SampleRepo stores connectivity samples for the health monitor.
type SampleRepo interface {
	// AddSample appends one observation.
	AddSample(ctx context.Context, sample model.Sample) error

	// RecentSamples returns observations at or after since (unix seconds).
	RecentSamples(ctx context.Context, since int64) ([]model.Sample, error)

	// CleanupBefore drops observations older than cutoff (unix seconds).
	CleanupBefore(ctx context.Context, cutoff int64) error
}
