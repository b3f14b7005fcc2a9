package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return rdb, mr
}

func newTestRateRepo(t *testing.T) (*RateWindowRepo, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	rdb, mr := setupTestRedis(t)
	logger := log.NewStdLogger(os.Stdout)
	return NewRateWindowRepo(&Data{redisClient: rdb}, logger), rdb, mr
}

func TestIncrementWindow_FirstIncrement(t *testing.T) {
	repo, rdb, _ := newTestRateRepo(t)
	defer rdb.Close()

	ctx := context.Background()

	count, err := repo.IncrementWindow(ctx, "get_feed", 60)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	// Verify TTL is set
	ttl := rdb.TTL(ctx, rateWindowKey("get_feed")).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 60*time.Second)
}

func TestIncrementWindow_SubsequentIncrements(t *testing.T) {
	repo, rdb, _ := newTestRateRepo(t)
	defer rdb.Close()

	ctx := context.Background()

	for want := 1; want <= 5; want++ {
		count, err := repo.IncrementWindow(ctx, "get_feed", 60)
		assert.NoError(t, err)
		assert.Equal(t, want, count)
	}
}

func TestIncrementWindow_ResetsAfterExpiry(t *testing.T) {
	repo, rdb, mr := newTestRateRepo(t)
	defer rdb.Close()

	ctx := context.Background()

	_, err := repo.IncrementWindow(ctx, "get_feed", 60)
	assert.NoError(t, err)

	// Window rolls over.
	mr.FastForward(61 * time.Second)

	count, err := repo.IncrementWindow(ctx, "get_feed", 60)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIncrementWindow_PerFunctionKeys(t *testing.T) {
	repo, rdb, _ := newTestRateRepo(t)
	defer rdb.Close()

	ctx := context.Background()

	_, err := repo.IncrementWindow(ctx, "get_feed", 60)
	assert.NoError(t, err)
	_, err = repo.IncrementWindow(ctx, "sign_in", 60)
	assert.NoError(t, err)

	count, err := repo.WindowCount(ctx, "sign_in")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWindowCount_MissingKey(t *testing.T) {
	repo, rdb, _ := newTestRateRepo(t)
	defer rdb.Close()

	count, err := repo.WindowCount(context.Background(), "never_called")
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRateWindow_NilClient(t *testing.T) {
	logger := log.NewStdLogger(os.Stdout)
	repo := NewRateWindowRepo(&Data{}, logger)

	_, err := repo.IncrementWindow(context.Background(), "get_feed", 60)
	assert.Error(t, err)

	_, err = repo.WindowCount(context.Background(), "get_feed")
	assert.Error(t, err)
}
