package biz

import (
	"context"
	"fmt"
	"time"

	"PolicyLane/pkg/backoff"
	"PolicyLane/pkg/circuit"
	"PolicyLane/pkg/retry"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// GovernorUseCase implements pre-flight admission and post-attempt
// bookkeeping for governed RPC functions. Callers consult Admit before
// sending, RecordResult after each attempt, and NextRetry after failures.
// The usecase itself holds no per-key state; circuit state lives in the
// injected repo and evolves through the pure evaluator.
type GovernorUseCase struct {
	registry *RegistryUseCase
	circuits CircuitStateRepo
	rate     RateWindowRepo
	audit    AuditLogger
	logger   *log.Helper

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewGovernorUseCase creates a new governor use case.
func NewGovernorUseCase(registry *RegistryUseCase, circuits CircuitStateRepo, rate RateWindowRepo, audit AuditLogger, logger log.Logger) *GovernorUseCase {
	return &GovernorUseCase{
		registry: registry,
		circuits: circuits,
		rate:     rate,
		audit:    audit,
		logger:   log.NewHelper(logger),
		now:      time.Now,
	}
}

// Admission is the outcome of a pre-flight check.
type Admission struct {
	Function     string            `json:"function"`
	Config       RPCConfig         `json:"config"`
	Allowed      bool              `json:"allowed"`
	Reason       string            `json:"reason"`
	CircuitState circuit.StateKind `json:"circuit_state"`
	// RetryAfter is how long the caller should wait before asking again.
	// Set on rate-window and open-circuit denials.
	RetryAfter time.Duration `json:"retry_after"`
}

// newRateLimitExceededError creates an HTTP 429 error for a rate-window denial.
func newRateLimitExceededError(function string, current, limit int, retryAfter time.Duration) error {
	return errors.New(
		429, // HTTP 429 Too Many Requests
		"RATE_LIMIT_EXCEEDED",
		fmt.Sprintf("rate limit exceeded: function=%s current=%d limit=%d retry_after=%s",
			function, current, limit, retryAfter),
	)
}

// newCircuitOpenError creates an HTTP 503 error for an open-circuit denial.
func newCircuitOpenError(function string, waitTime time.Duration, reason string) error {
	return errors.New(
		503, // HTTP 503 Service Unavailable
		"CIRCUIT_OPEN",
		fmt.Sprintf("request blocked: function=%s wait=%s reason=%s", function, waitTime, reason),
	)
}

// Admit runs the pre-flight checks for one invocation of function: rate
// window first, then circuit breaker. Returns a non-nil error (kratos
// coded 429 or 503) when denied; the Admission is populated either way so
// callers can log the decision.
//
// Redis degradation: a failing rate window allows the request (graceful
// degradation, same posture as everywhere else in this engine).
func (uc *GovernorUseCase) Admit(ctx context.Context, function string) (*Admission, error) {
	cfg := uc.registry.GetConfig(function)
	adm := &Admission{
		Function: function,
		Config:   cfg,
	}

	// Rate window.
	if cfg.MaxRequests > 0 {
		count, err := uc.rate.IncrementWindow(ctx, function, int(cfg.Window.Seconds()))
		if err != nil {
			uc.logger.Warnf("rate window check failed for %s: %v (request allowed)", function, err)
		} else if count > cfg.MaxRequests {
			uc.logger.Warnw("msg", "rate window exceeded",
				"function", function,
				"current", count,
				"limit", cfg.MaxRequests)
			adm.Reason = "rate limit exceeded"
			adm.RetryAfter = cfg.Window
			return adm, newRateLimitExceededError(function, count, cfg.MaxRequests, cfg.Window)
		}
	}

	// Circuit breaker pre-flight.
	ccfg := uc.circuitConfig(cfg)
	var decision circuit.Decision
	err := uc.circuits.WithLock(function, func() error {
		blob, err := uc.circuits.Load(ctx, function)
		if err != nil {
			// Missing or unreadable state is a fresh closed circuit.
			uc.logger.Warnf("circuit state load failed for %s: %v (treating as closed)", function, err)
			blob = nil
		}
		state := circuit.ParseState(blob)

		var next circuit.State
		decision, next = circuit.Evaluate(state, ccfg, uc.now())
		return uc.circuits.Store(ctx, function, next.Marshal())
	})
	if err != nil {
		// Persistence failure must not block traffic.
		uc.logger.Warnf("circuit state store failed for %s: %v (request allowed)", function, err)
		adm.Allowed = true
		adm.Reason = "circuit state unavailable"
		adm.CircuitState = circuit.StateClosed
		return adm, nil
	}

	adm.CircuitState = decision.State
	adm.Reason = decision.Reason
	if !decision.Allowed {
		adm.RetryAfter = decision.WaitTime
		return adm, newCircuitOpenError(function, decision.WaitTime, decision.Reason)
	}

	adm.Allowed = true
	return adm, nil
}

// RecordResult folds the outcome of one attempt into the function's
// circuit state and, for audited functions, the compliance trail.
// Transitions are detected here so opening and recovery land in the audit
// trail exactly once.
func (uc *GovernorUseCase) RecordResult(ctx context.Context, function string, success bool, statusCode int, duration time.Duration) error {
	cfg := uc.registry.GetConfig(function)
	ccfg := uc.circuitConfig(cfg)

	var before, after circuit.State
	err := uc.circuits.WithLock(function, func() error {
		blob, err := uc.circuits.Load(ctx, function)
		if err != nil {
			blob = nil
		}
		before = circuit.ParseState(blob)

		if success {
			after = circuit.RecordSuccess(before, ccfg, uc.now())
		} else {
			after = circuit.RecordFailure(before, ccfg, uc.now())
		}
		return uc.circuits.Store(ctx, function, after.Marshal())
	})
	if err != nil {
		uc.logger.Warnf("failed to record result for %s: %v", function, err)
		return err
	}

	if before.Kind != circuit.StateOpen && after.Kind == circuit.StateOpen {
		uc.logger.Warnw("msg", "circuit opened",
			"function", function,
			"status_code", statusCode)
		uc.audit.LogCircuitOpened(ctx, function, ccfg.FailureThreshold, uc.now())
	}
	if before.Kind == circuit.StateHalfOpen && after.Kind == circuit.StateClosed {
		recoverTime := time.Duration(0)
		if before.OpenedAt > 0 {
			recoverTime = uc.now().Sub(time.UnixMilli(before.OpenedAt))
		}
		uc.logger.Infow("msg", "circuit recovered",
			"function", function,
			"probes", before.SuccessCount+1)
		uc.audit.LogCircuitRecovered(ctx, function, recoverTime, before.SuccessCount+1)
	}

	if cfg.RequiresAuditLog {
		uc.audit.LogInvocation(ctx, function, success, statusCode, duration)
	}

	return nil
}

// NextRetry decides whether the attempt that failed with statusCode should
// be retried, using the function's retry envelope. currentAttempt is
// zero-based; the budget is MaxRetries+1 total attempts.
func (uc *GovernorUseCase) NextRetry(function string, statusCode, currentAttempt int) retry.Decision {
	cfg := uc.registry.GetConfig(function)
	ev := retry.NewEvaluator(cfg.InitialRetryDelay, cfg.MaxRetryDelay, backoff.ExponentialWithJitter)
	return ev.ShouldRetry(statusCode, currentAttempt, cfg.MaxRetries+1)
}

// CircuitState returns the parsed circuit state for a function, for the
// admin surface.
func (uc *GovernorUseCase) CircuitState(ctx context.Context, function string) (circuit.State, error) {
	blob, err := uc.circuits.Load(ctx, function)
	if err != nil {
		return circuit.NewState(), err
	}
	return circuit.ParseState(blob), nil
}

// ResetCircuit drops the circuit state for a function, forcing it closed.
func (uc *GovernorUseCase) ResetCircuit(ctx context.Context, function, operator string) error {
	if err := uc.circuits.Delete(ctx, function); err != nil {
		return fmt.Errorf("failed to reset circuit for %s: %w", function, err)
	}

	uc.logger.Infow("msg", "circuit reset",
		"function", function,
		"operator", operator)
	uc.audit.LogCircuitReset(ctx, function, operator)
	return nil
}

// TrackedFunctions returns the functions with live circuit state.
func (uc *GovernorUseCase) TrackedFunctions(ctx context.Context) ([]string, error) {
	return uc.circuits.Keys(ctx)
}

// circuitConfig derives the breaker tuning for one function from its
// RPCConfig, starting from the default breaker preset.
func (uc *GovernorUseCase) circuitConfig(cfg RPCConfig) circuit.Config {
	ccfg := circuit.Preset(circuit.PresetDefault)
	ccfg.FailureThreshold = cfg.CircuitFailureThreshold
	ccfg.ResetTimeout = cfg.CircuitResetTimeout
	return ccfg
}
