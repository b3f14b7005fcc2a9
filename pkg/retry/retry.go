// Package retry classifies failed network attempts and decides whether
// another attempt is worth making. It is a pure decision layer: callers own
// the actual retry loop, sleeping, and cancellation.
package retry

import (
	"fmt"
	"time"

	"PolicyLane/pkg/backoff"
)

// StatusNetworkError marks a failure that never produced an HTTP status
// code (connection refused, DNS failure, timeout before response). Such
// failures are treated as retryable, same as 5xx.
const StatusNetworkError = 0

// Decision is the outcome of a single retry evaluation.
// Reason is intended for logging and telemetry, not user display.
type Decision struct {
	ShouldRetry bool          `json:"should_retry"`
	Delay       time.Duration `json:"delay"`
	Reason      string        `json:"reason"`
}

// Evaluator decides retries for one retry envelope.
type Evaluator struct {
	calc *backoff.Calculator
}

// NewEvaluator creates an Evaluator computing delays with the given
// envelope and strategy.
func NewEvaluator(base, max time.Duration, strategy backoff.Strategy, opts ...backoff.Option) *Evaluator {
	return &Evaluator{calc: backoff.New(base, max, strategy, opts...)}
}

// NewDefaultEvaluator uses exponentialWithJitter, the strategy every
// preset defaults to.
func NewDefaultEvaluator(base, max time.Duration) *Evaluator {
	return NewEvaluator(base, max, backoff.ExponentialWithJitter)
}

// ShouldRetry decides whether the attempt that just failed with statusCode
// should be retried. currentAttempt is zero-based; maxAttempts is the total
// attempt budget including the first try. Exhaustion wins over
// classification: once currentAttempt+1 >= maxAttempts the answer is no
// regardless of status.
func (e *Evaluator) ShouldRetry(statusCode, currentAttempt, maxAttempts int) Decision {
	if currentAttempt < 0 {
		currentAttempt = 0
	}

	if currentAttempt+1 >= maxAttempts {
		return Decision{
			ShouldRetry: false,
			Reason:      fmt.Sprintf("max attempts exceeded (%d/%d)", currentAttempt+1, maxAttempts),
		}
	}

	if !Retryable(statusCode) {
		return Decision{
			ShouldRetry: false,
			Reason:      classify(statusCode),
		}
	}

	return Decision{
		ShouldRetry: true,
		Delay:       e.calc.Delay(currentAttempt),
		Reason:      classify(statusCode),
	}
}

// Retryable reports whether a status code indicates a transient failure.
// Defensive on success codes: a 2xx fed in by mistake is not a retry
// candidate.
func Retryable(statusCode int) bool {
	switch statusCode {
	case StatusNetworkError:
		return true
	case 408, 429:
		return true
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// classify produces the reason string for a status code.
func classify(statusCode int) string {
	switch {
	case statusCode == StatusNetworkError:
		return "network error"
	case statusCode == 408:
		return "request timeout"
	case statusCode == 429:
		return "rate limited"
	case statusCode >= 500 && statusCode < 600:
		return fmt.Sprintf("server error %d", statusCode)
	case statusCode >= 200 && statusCode < 300:
		return fmt.Sprintf("success %d, not a retry candidate", statusCode)
	case statusCode >= 400 && statusCode < 500:
		return fmt.Sprintf("client error %d, retrying will not help", statusCode)
	default:
		return fmt.Sprintf("status %d not retryable", statusCode)
	}
}
