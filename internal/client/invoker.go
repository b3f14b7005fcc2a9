// Package client is the reference calling layer: it drives a kratos HTTP
// client through the governor so every outbound RPC gets the pre-flight
// checks, the per-attempt timeout, the retry schedule, and the result
// bookkeeping without the caller repeating any of it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"PolicyLane/internal/biz"
	pkglog "PolicyLane/pkg/log"
	"PolicyLane/pkg/retry"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// Invoker sends governed RPC requests. One Invoker wraps one backend
// endpoint; the per-function policy comes from the governor.
type Invoker struct {
	governor *biz.GovernorUseCase
	monitor  *biz.HealthMonitorUseCase
	client   *khttp.Client
	logger   *pkglog.LogHelper
}

// NewInvoker dials the backend endpoint and returns a governed Invoker.
func NewInvoker(ctx context.Context, endpoint string, governor *biz.GovernorUseCase, monitor *biz.HealthMonitorUseCase, logger log.Logger) (*Invoker, error) {
	client, err := khttp.NewClient(ctx, khttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return &Invoker{
		governor: governor,
		monitor:  monitor,
		client:   client,
		logger:   pkglog.NewLogHelper(logger),
	}, nil
}

// Invoke sends one governed request and decodes the reply into reply.
// function is the logical RPC name the policy is keyed by; method and
// path address the backend. Each network attempt gets its own timeout
// from the function's config; the retry schedule comes from the
// governor. Denials surface as kratos 429/503 errors without touching
// the network.
func (inv *Invoker) Invoke(ctx context.Context, function, method, path string, args, reply interface{}) error {
	ctx = pkglog.WithRequestContext(ctx, pkglog.GenerateRequestID(), function)

	for attempt := 0; ; attempt++ {
		adm, err := inv.governor.Admit(ctx, function)
		if err != nil {
			inv.logger.RateLimit("request denied pre-flight",
				"function", function,
				"reason", adm.Reason,
				"retry_after", adm.RetryAfter.String())
			return err
		}

		statusCode, duration, attemptErr := inv.attempt(ctx, adm.Config, method, path, args, reply)

		inv.monitor.RecordSample(ctx, duration, attemptErr != nil)
		if recErr := inv.governor.RecordResult(ctx, function, attemptErr == nil, statusCode, duration); recErr != nil {
			inv.logger.Circuit("failed to record attempt result",
				"function", function,
				"error", recErr)
		}

		if attemptErr == nil {
			return nil
		}

		decision := inv.governor.NextRetry(function, statusCode, attempt)
		if !decision.ShouldRetry {
			inv.logger.Retry("giving up",
				"function", function,
				"attempt", attempt,
				"status", statusCode,
				"reason", decision.Reason)
			return attemptErr
		}

		inv.logger.Retry("retrying",
			"function", function,
			"attempt", attempt,
			"status", statusCode,
			"delay", decision.Delay.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(decision.Delay):
		}
	}
}

// attempt performs one network attempt under the config's timeout.
func (inv *Invoker) attempt(ctx context.Context, cfg biz.RPCConfig, method, path string, args, reply interface{}) (status int, duration time.Duration, err error) {
	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err = inv.client.Invoke(attemptCtx, method, path, args, reply)
	duration = time.Since(start)

	return classifyStatus(err), duration, err
}

// classifyStatus maps an attempt error to the status code the retry
// evaluator reasons about. Transport-level failures (timeouts, refused
// connections) have no HTTP status and map to the network-error code.
func classifyStatus(err error) int {
	if err == nil {
		return 200
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return retry.StatusNetworkError
	}

	if se := kerrors.FromError(err); se != nil && se.Code > 0 {
		return int(se.Code)
	}
	return retry.StatusNetworkError
}
