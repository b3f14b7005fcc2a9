package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"PolicyLane/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// sampleSetKey is the sorted set of connectivity samples, scored by
// observation time (unix seconds) so window queries and cleanup are range
// operations.
const sampleSetKey = "health:samples"

// SampleRepo implements biz.SampleRepo on a Redis sorted set.
type SampleRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewSampleRepo creates a new connectivity sample repository.
func NewSampleRepo(d *Data, logger log.Logger) *SampleRepo {
	return &SampleRepo{
		rdb:    d.GetRedisClient(),
		logger: log.NewHelper(logger),
	}
}

// sampleMember is the serialized ZSET member. A per-sample sequence of the
// observation time plus latency would collide for identical samples, so a
// random suffix keeps members unique.
type sampleMember struct {
	LatencyMs int64  `json:"l"`
	Failed    bool   `json:"f"`
	Nonce     string `json:"n"`
}

// AddSample appends one observation scored by its observation time.
func (r *SampleRepo) AddSample(ctx context.Context, sample model.Sample) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	member, err := json.Marshal(sampleMember{
		LatencyMs: sample.Latency.Milliseconds(),
		Failed:    sample.Failed,
		Nonce:     nonce(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	if err := r.rdb.ZAdd(ctx, sampleSetKey, redis.Z{
		Score:  float64(sample.ObservedAt.Unix()),
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("failed to add sample: %w", err)
	}

	return nil
}

// RecentSamples returns the observations at or after since.
func (r *SampleRepo) RecentSamples(ctx context.Context, since int64) ([]model.Sample, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	members, err := r.rdb.ZRangeByScoreWithScores(ctx, sampleSetKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	samples := make([]model.Sample, 0, len(members))
	for _, z := range members {
		raw, ok := z.Member.(string)
		if !ok {
			continue
		}
		var m sampleMember
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			// Skip unreadable members rather than failing the window.
			r.logger.Warnf("skipping malformed sample member: %v", err)
			continue
		}
		samples = append(samples, model.Sample{
			Latency:    time.Duration(m.LatencyMs) * time.Millisecond,
			Failed:     m.Failed,
			ObservedAt: time.Unix(int64(z.Score), 0),
		})
	}

	return samples, nil
}

// CleanupBefore drops observations older than cutoff.
func (r *SampleRepo) CleanupBefore(ctx context.Context, cutoff int64) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	removed, err := r.rdb.ZRemRangeByScore(ctx, sampleSetKey, "-inf",
		"("+strconv.FormatInt(cutoff, 10)).Result()
	if err != nil {
		return fmt.Errorf("failed to cleanup samples: %w", err)
	}

	if removed > 0 {
		r.logger.Debugw("msg", "expired samples cleaned up", "removed", removed)
	}
	return nil
}

// nonce returns a short random suffix for sample members.
// The top-level rand functions are safe for concurrent use.
func nonce() string {
	return strconv.FormatInt(rand.Int63(), 36)
}
