package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PolicyLane/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// CircuitStateStore is the data-layer contract for per-function circuit
// state blobs. Two implementations exist: a bounded in-memory LRU store
// and a Redis-backed store that survives restarts.
type CircuitStateStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, state []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	WithLock(key string, fn func() error) error
}

// NewCircuitStateStore selects the store implementation from configuration.
// Defaults to memory.
func NewCircuitStateStore(c *conf.Data, rdb *redis.Client, logger log.Logger) (CircuitStateStore, error) {
	helper := log.NewHelper(logger)

	kind := "memory"
	if c != nil && c.CircuitStore != "" {
		kind = c.CircuitStore
	}

	switch kind {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("circuit store: redis selected but no redis client available")
		}
		helper.Info("using redis circuit state store")
		return NewRedisCircuitStore(rdb, logger), nil
	case "memory":
		helper.Info("using in-memory circuit state store")
		return NewMemoryCircuitStore(logger)
	default:
		return nil, fmt.Errorf("circuit store: unknown kind %q", kind)
	}
}

// memoryStoreSize bounds the number of tracked keys. The function table is
// a few dozen entries; the bound only matters if a caller governs by host.
const memoryStoreSize = 1024

// MemoryCircuitStore keeps circuit state blobs in a bounded LRU cache.
// One mutex serializes all read-modify-write cycles; evaluation is
// microseconds, so per-key locking would buy nothing here.
type MemoryCircuitStore struct {
	mu     sync.Mutex
	states *lru.Cache[string, []byte]
	logger *log.Helper
}

// NewMemoryCircuitStore creates an in-memory circuit state store.
func NewMemoryCircuitStore(logger log.Logger) (*MemoryCircuitStore, error) {
	cache, err := lru.New[string, []byte](memoryStoreSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create circuit state cache: %w", err)
	}
	return &MemoryCircuitStore{
		states: cache,
		logger: log.NewHelper(logger),
	}, nil
}

// Load returns the blob for key, or nil when absent.
func (s *MemoryCircuitStore) Load(_ context.Context, key string) ([]byte, error) {
	if blob, ok := s.states.Get(key); ok {
		return blob, nil
	}
	return nil, nil
}

// Store persists the blob for key, evicting the least-recently-used entry
// when the bound is hit.
func (s *MemoryCircuitStore) Store(_ context.Context, key string, state []byte) error {
	s.states.Add(key, state)
	return nil
}

// Delete removes the state for key.
func (s *MemoryCircuitStore) Delete(_ context.Context, key string) error {
	s.states.Remove(key)
	return nil
}

// Keys returns the tracked keys.
func (s *MemoryCircuitStore) Keys(_ context.Context) ([]string, error) {
	return s.states.Keys(), nil
}

// WithLock serializes read-modify-write cycles.
func (s *MemoryCircuitStore) WithLock(_ string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Redis key layout for circuit state.
const (
	circuitKeyPrefix = "circuit:"
	// circuitStateTTL caps how long an untouched circuit blob lives. A
	// stale blob parsing to an old open circuit would deny traffic after
	// the incident is long over.
	circuitStateTTL = 1 * time.Hour
)

// RedisCircuitStore keeps circuit state blobs in Redis so state survives
// process restarts and is shared across replicas. Per-key locks live in a
// local map: Redis serializes individual commands but not the
// load-evaluate-store cycle.
type RedisCircuitStore struct {
	rdb    *redis.Client
	logger *log.Helper

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisCircuitStore creates a Redis-backed circuit state store.
func NewRedisCircuitStore(rdb *redis.Client, logger log.Logger) *RedisCircuitStore {
	return &RedisCircuitStore{
		rdb:    rdb,
		logger: log.NewHelper(logger),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Load returns the blob for key. A missing key returns nil without error;
// a Redis failure is reported so the caller can fall back to a fresh
// closed circuit.
func (s *RedisCircuitStore) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.rdb.Get(ctx, circuitKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load circuit state for %s: %w", key, err)
	}
	return blob, nil
}

// Store persists the blob for key with the state TTL.
func (s *RedisCircuitStore) Store(ctx context.Context, key string, state []byte) error {
	if err := s.rdb.Set(ctx, circuitKeyPrefix+key, state, circuitStateTTL).Err(); err != nil {
		return fmt.Errorf("failed to store circuit state for %s: %w", key, err)
	}
	return nil
}

// Delete removes the state for key.
func (s *RedisCircuitStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, circuitKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete circuit state for %s: %w", key, err)
	}
	return nil
}

// Keys returns the keys with live circuit state.
func (s *RedisCircuitStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, circuitKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(circuitKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan circuit keys: %w", err)
	}
	return keys, nil
}

// WithLock serializes read-modify-write for one key within this process.
// Cross-replica contention is tolerated: the worst case is a lost counter
// increment, and the breaker favors availability anyway.
func (s *RedisCircuitStore) WithLock(key string, fn func() error) error {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn()
}
