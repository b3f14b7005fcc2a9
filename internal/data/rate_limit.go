package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RateWindowRepo implements biz.RateWindowRepo with fixed-window counters
// in Redis. Following Kratos v2 DDD architecture, the interface is defined
// in the biz layer.
type RateWindowRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRateWindowRepo creates a new rate window repository.
func NewRateWindowRepo(d *Data, logger log.Logger) *RateWindowRepo {
	return &RateWindowRepo{
		rdb:    d.GetRedisClient(),
		logger: log.NewHelper(logger),
	}
}

// IncrementWindow increments the fixed-window counter for a function.
// Uses Redis INCR with expiration set on first increment, so the counter
// resets itself when the window rolls over. Returns the new count.
func (r *RateWindowRepo) IncrementWindow(ctx context.Context, function string, windowSeconds int) (int, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	key := rateWindowKey(function)

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate window: %w", err)
	}

	// Set expiration on first increment (atomic operation)
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, time.Duration(windowSeconds)*time.Second).Err(); err != nil {
			r.logger.Warnf("Failed to set window expiration for %s: %v", function, err)
			// Don't return error, counter is still incremented
		}
	}

	return int(count), nil
}

// WindowCount retrieves the current window counter for a function.
// Returns 0 if the key doesn't exist.
func (r *RateWindowRepo) WindowCount(ctx context.Context, function string) (int, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	count, err := r.rdb.Get(ctx, rateWindowKey(function)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get window count: %w", err)
	}

	return count, nil
}

func rateWindowKey(function string) string {
	return fmt.Sprintf("rate:%s", function)
}
