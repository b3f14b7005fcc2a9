// Package circuit implements a circuit breaker as a pure evaluator over
// externalized state. The breaker never holds per-key state itself: callers
// pass the current State in and persist the evolved State that comes back.
// This keeps the evaluator referentially transparent, lets each caller keep
// per-key state in whatever store it already owns, and makes circuit state
// trivially serializable for inspection and tests.
package circuit

import (
	"encoding/json"
	"fmt"
	"time"
)

// StateKind is the circuit breaker state machine position.
type StateKind string

const (
	StateClosed   StateKind = "closed"
	StateOpen     StateKind = "open"
	StateHalfOpen StateKind = "halfOpen"
)

// String returns the wire name of the state.
func (s StateKind) String() string { return string(s) }

// Config tunes one breaker's transitions.
type Config struct {
	// FailureThreshold is the number of failures within FailureWindow that
	// trips a closed circuit open.
	FailureThreshold int `json:"failure_threshold"`
	// SuccessThreshold is the number of consecutive half-open probe
	// successes required to close the circuit again.
	SuccessThreshold int `json:"success_threshold"`
	// ResetTimeout is how long an open circuit waits before probing.
	ResetTimeout time.Duration `json:"reset_timeout"`
	// FailureWindow is the rolling window failures are counted in.
	FailureWindow time.Duration `json:"failure_window"`
	// HalfOpenRequestPercentage is the share of half-open requests let
	// through as probes, in [0, 100].
	HalfOpenRequestPercentage int `json:"half_open_request_percentage"`
}

// Preset names. The values behind them are a versioned contract; callers
// tuning per-endpoint behavior pick a preset rather than raw numbers.
const (
	PresetDefault   = "default"
	PresetSensitive = "sensitive"
	PresetTolerant  = "tolerant"
)

// Preset returns a named breaker configuration. Unknown names fall back to
// the default preset, consistent with the fail-open posture everywhere else.
func Preset(name string) Config {
	switch name {
	case PresetSensitive:
		return Config{
			FailureThreshold:          3,
			SuccessThreshold:          3,
			ResetTimeout:              60 * time.Second,
			FailureWindow:             30 * time.Second,
			HalfOpenRequestPercentage: 25,
		}
	case PresetTolerant:
		return Config{
			FailureThreshold:          10,
			SuccessThreshold:          1,
			ResetTimeout:              15 * time.Second,
			FailureWindow:             120 * time.Second,
			HalfOpenRequestPercentage: 100,
		}
	default:
		return Config{
			FailureThreshold:          5,
			SuccessThreshold:          2,
			ResetTimeout:              30 * time.Second,
			FailureWindow:             60 * time.Second,
			HalfOpenRequestPercentage: 50,
		}
	}
}

// State is the serializable per-key breaker state. Timestamps are unix
// milliseconds so the blob stays platform-neutral.
type State struct {
	Kind         StateKind `json:"state"`
	FailureTimes []int64   `json:"failure_times,omitempty"`
	SuccessCount int       `json:"success_count,omitempty"`
	ProbeCount   int       `json:"probe_count,omitempty"`
	OpenedAt     int64     `json:"opened_at,omitempty"`
}

// NewState returns a fresh closed circuit.
func NewState() State {
	return State{Kind: StateClosed}
}

// ParseState decodes a serialized state blob. Malformed, empty, or
// unrecognizable input yields a fresh closed circuit: a corrupted blob must
// never block all traffic for a key, so the breaker fails open.
func ParseState(b []byte) State {
	if len(b) == 0 {
		return NewState()
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return NewState()
	}
	switch s.Kind {
	case StateClosed, StateOpen, StateHalfOpen:
		return s
	default:
		return NewState()
	}
}

// Marshal encodes the state for persistence. Never fails: State contains
// only marshalable fields.
func (s State) Marshal() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Decision is the outcome of a pre-flight circuit evaluation.
type Decision struct {
	Allowed bool      `json:"allowed"`
	State   StateKind `json:"state"`
	// WaitTime is the remaining time until an open circuit will probe.
	// Zero unless the request was denied by an open circuit.
	WaitTime time.Duration `json:"wait_time"`
	Reason   string        `json:"reason"`
}

// Evaluate decides whether a request may proceed and returns the evolved
// state the caller must persist. The open→halfOpen transition happens here,
// once ResetTimeout has elapsed since the circuit opened.
func Evaluate(s State, cfg Config, now time.Time) (Decision, State) {
	switch s.Kind {
	case StateOpen:
		elapsed := now.Sub(time.UnixMilli(s.OpenedAt))
		if elapsed < cfg.ResetTimeout {
			return Decision{
				Allowed:  false,
				State:    StateOpen,
				WaitTime: cfg.ResetTimeout - elapsed,
				Reason:   "circuit open, reset timeout not elapsed",
			}, s
		}
		// Reset timeout elapsed: move to half-open and decide as a probe.
		s.Kind = StateHalfOpen
		s.SuccessCount = 0
		s.ProbeCount = 0
		return evaluateHalfOpen(s, cfg)

	case StateHalfOpen:
		return evaluateHalfOpen(s, cfg)

	default: // closed, including zero-value states
		s.Kind = StateClosed
		s.FailureTimes = pruneWindow(s.FailureTimes, cfg.FailureWindow, now)
		return Decision{
			Allowed: true,
			State:   StateClosed,
			Reason:  "circuit closed",
		}, s
	}
}

// evaluateHalfOpen admits HalfOpenRequestPercentage percent of requests as
// probes. Admission is a deterministic rotation over the probe counter
// rather than a random draw, so identical state always yields identical
// decisions.
func evaluateHalfOpen(s State, cfg Config) (Decision, State) {
	slot := s.ProbeCount % 100
	s.ProbeCount++

	if pct := cfg.HalfOpenRequestPercentage; slot < pct {
		return Decision{
			Allowed: true,
			State:   StateHalfOpen,
			Reason:  "half-open probe allowed",
		}, s
	}
	return Decision{
		Allowed: false,
		State:   StateHalfOpen,
		Reason:  "half-open probe quota exhausted",
	}, s
}

// RecordSuccess folds a successful attempt into the state.
// Only halfOpen may transition to closed, after SuccessThreshold
// consecutive probe successes.
func RecordSuccess(s State, cfg Config, now time.Time) State {
	switch s.Kind {
	case StateHalfOpen:
		s.SuccessCount++
		if s.SuccessCount >= cfg.SuccessThreshold {
			return NewState()
		}
		return s
	case StateOpen:
		// A success while open means the caller bypassed the breaker;
		// leave the state alone and let the reset timeout run its course.
		return s
	default:
		s.Kind = StateClosed
		s.FailureTimes = pruneWindow(s.FailureTimes, cfg.FailureWindow, now)
		return s
	}
}

// RecordFailure folds a failed attempt into the state. A closed circuit
// opens once FailureThreshold failures land within FailureWindow; any
// half-open probe failure reopens immediately and restarts the reset clock.
func RecordFailure(s State, cfg Config, now time.Time) State {
	switch s.Kind {
	case StateHalfOpen:
		return open(now)
	case StateOpen:
		return s
	default:
		s.Kind = StateClosed
		s.FailureTimes = pruneWindow(s.FailureTimes, cfg.FailureWindow, now)
		s.FailureTimes = append(s.FailureTimes, now.UnixMilli())
		if len(s.FailureTimes) >= cfg.FailureThreshold {
			return open(now)
		}
		return s
	}
}

func open(now time.Time) State {
	return State{
		Kind:     StateOpen,
		OpenedAt: now.UnixMilli(),
	}
}

// pruneWindow drops failure timestamps older than the rolling window.
func pruneWindow(times []int64, window time.Duration, now time.Time) []int64 {
	if len(times) == 0 {
		return times
	}
	cutoff := now.Add(-window).UnixMilli()
	kept := times[:0]
	for _, ts := range times {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	return kept
}

// Validate checks a Config for programming errors. Presets always pass;
// this exists for runtime-registered overrides.
func (c Config) Validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("circuit: failure threshold must be >= 1, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold < 1 {
		return fmt.Errorf("circuit: success threshold must be >= 1, got %d", c.SuccessThreshold)
	}
	if c.HalfOpenRequestPercentage < 0 || c.HalfOpenRequestPercentage > 100 {
		return fmt.Errorf("circuit: half-open percentage must be in [0,100], got %d", c.HalfOpenRequestPercentage)
	}
	return nil
}
