package main

import (
	"context"
	"time"

	"PolicyLane/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// newCronJobs starts the background maintenance schedule:
//   - every 30 seconds: re-evaluate connection health so the offline-mode
//     signal stays current even when no requests flow
//   - every 5 minutes: drop connectivity samples that fell out of the
//     rolling window
func newCronJobs(monitor *biz.HealthMonitorUseCase, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("*/30 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result := monitor.Evaluate(ctx)
		if result.OfflineMode {
			helper.Warnw("msg", "connection health check",
				"status", result.Status,
				"score", result.HealthScore,
				"offline_mode", true)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register health check cron job", "error", err)
	}

	_, err = c.AddFunc("0 */5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := monitor.Cleanup(ctx); err != nil {
			helper.Warnw("msg", "sample cleanup failed", "error", err)
		}
	})
	if err != nil {
		helper.Errorw("msg", "failed to register sample cleanup cron job", "error", err)
	}

	c.Start()
	helper.Info("maintenance cron jobs started: health check every 30s, sample cleanup every 5m")

	return c
}
