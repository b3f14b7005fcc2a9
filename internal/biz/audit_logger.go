package biz

import (
	"context"
	"time"
)

// AuditLogger defines the interface for the compliance audit trail.
// Implementations must never block the request path.
type AuditLogger interface {
	// LogCircuitOpened records a circuit opening for a function.
	LogCircuitOpened(ctx context.Context, function string, failureCount int, openedAt time.Time)

	// LogCircuitRecovered records a circuit closing again after probing.
	LogCircuitRecovered(ctx context.Context, function string, recoverTime time.Duration, probeCount int)

	// LogCircuitReset records a manual circuit reset.
	LogCircuitReset(ctx context.Context, function string, operator string)

	// LogConfigOverridden records a runtime RPCConfig override.
	LogConfigOverridden(ctx context.Context, function string, operator string)

	// LogInvocation records one governed invocation of an audited function.
	LogInvocation(ctx context.Context, function string, success bool, statusCode int, duration time.Duration)
}
