package biz

import (
	"context"
	"sync"
	"time"

	"PolicyLane/internal/model"
	"PolicyLane/pkg/health"

	"github.com/go-kratos/kratos/v2/log"
)

// HealthMonitorUseCase aggregates connectivity samples over a rolling
// window and evaluates them into a connection-health snapshot. The caller
// (governed invoker, cron job) records one sample per attempt; consumers
// read the latest snapshot to decide whether to suppress bulk traffic.
type HealthMonitorUseCase struct {
	samples  SampleRepo
	window   time.Duration
	connType string
	logger   *log.Helper

	mu   sync.RWMutex
	last *health.Result

	now func() time.Time
}

// NewHealthMonitorUseCase creates a new health monitor.
func NewHealthMonitorUseCase(samples SampleRepo, window time.Duration, connType string, logger log.Logger) *HealthMonitorUseCase {
	if window <= 0 {
		window = 60 * time.Second
	}
	if connType == "" {
		connType = "wifi"
	}
	return &HealthMonitorUseCase{
		samples:  samples,
		window:   window,
		connType: connType,
		logger:   log.NewHelper(logger),
		now:      time.Now,
	}
}

// RecordSample stores one observation. Failures here never propagate: a
// broken sample store must not fail the request that produced the sample.
func (uc *HealthMonitorUseCase) RecordSample(ctx context.Context, latency time.Duration, failed bool) {
	sample := model.Sample{
		Latency:    latency,
		Failed:     failed,
		ObservedAt: uc.now(),
	}
	if err := uc.samples.AddSample(ctx, sample); err != nil {
		uc.logger.Warnf("failed to record connectivity sample: %v", err)
	}
}

// Evaluate recomputes connection health from the samples inside the
// rolling window and caches the snapshot. With no samples the connection
// is reported healthy: absence of traffic is not evidence of trouble.
func (uc *HealthMonitorUseCase) Evaluate(ctx context.Context) health.Result {
	since := uc.now().Add(-uc.window).Unix()

	samples, err := uc.samples.RecentSamples(ctx, since)
	if err != nil {
		uc.logger.Warnf("failed to read connectivity samples: %v (reporting last snapshot)", err)
		return uc.Snapshot()
	}

	total := len(samples)
	var errorRate float64
	var avgLatency *time.Duration
	if total > 0 {
		var failures int
		var sum time.Duration
		for _, s := range samples {
			sum += s.Latency
			if s.Failed {
				failures++
			}
		}
		errorRate = float64(failures) / float64(total)
		avg := sum / time.Duration(total)
		avgLatency = &avg
	}

	result := health.Evaluate(errorRate, avgLatency, uc.connType)

	uc.mu.Lock()
	uc.last = &result
	uc.mu.Unlock()

	uc.logger.Debugw("msg", "connection health evaluated",
		"status", result.Status,
		"score", result.HealthScore,
		"samples", total,
		"error_rate", errorRate)

	return result
}

// Snapshot returns the most recent evaluation without recomputing.
// Before the first evaluation it reports a healthy connection.
func (uc *HealthMonitorUseCase) Snapshot() health.Result {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	if uc.last != nil {
		return *uc.last
	}
	return health.Evaluate(0, nil, uc.connType)
}

// Cleanup drops samples that fell out of the rolling window. Called
// periodically by the cron job.
func (uc *HealthMonitorUseCase) Cleanup(ctx context.Context) error {
	cutoff := uc.now().Add(-uc.window).Unix()
	if err := uc.samples.CleanupBefore(ctx, cutoff); err != nil {
		uc.logger.Warnf("failed to cleanup expired samples: %v", err)
		return err
	}
	return nil
}
