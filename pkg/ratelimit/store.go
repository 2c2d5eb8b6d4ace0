package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists rate limit state.
type StateStore interface {
	// Load returns the current state. A missing state is the zero State.
	Load(ctx context.Context) (State, error)

	// Record registers a rate limit response observed at now that opens a
	// cooldown until the given instant.
	Record(ctx context.Context, until time.Time, status int, now time.Time) error
}

// MemoryStateStore keeps state in process memory.
type MemoryStateStore struct {
	mu    sync.Mutex
	state State
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load implements StateStore.
func (m *MemoryStateStore) Load(_ context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

// Record implements StateStore. An open window is only ever extended.
func (m *MemoryStateStore) Record(_ context.Context, until time.Time, status int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if until.After(m.state.Until) {
		m.state.Until = until
	}
	m.state.Hits++
	m.state.LastStatus = status
	m.state.LastUpdate = now
	return nil
}

// RedisStateStore shares state between processes through Redis.
// The cooldown key carries its own expiry so an idle Redis holds no stale
// windows.
type RedisStateStore struct {
	redis *redis.Client
}

// NewRedisStateStore creates a Redis backed store.
func NewRedisStateStore(redisClient *redis.Client) *RedisStateStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStateStore{redis: redisClient}
}

// Load implements StateStore.
func (r *RedisStateStore) Load(ctx context.Context) (State, error) {
	pipe := r.redis.Pipeline()
	untilCmd := pipe.Get(ctx, RedisKeyCooldownUntil)
	hitsCmd := pipe.Get(ctx, RedisKeyHits)
	statusCmd := pipe.Get(ctx, RedisKeyLastStatus)
	updateCmd := pipe.Get(ctx, RedisKeyLastUpdate)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("load rate limit state from redis: %w", err)
	}

	var state State

	untilMs, err := untilCmd.Int64()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("parse cooldown until: %w", err)
	}
	if err == nil {
		state.Until = time.UnixMilli(untilMs)
	}

	if state.Hits, err = hitsCmd.Int64(); err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("parse hits: %w", err)
	}

	if state.LastStatus, err = statusCmd.Int(); err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("parse last status: %w", err)
	}

	updateMs, err := updateCmd.Int64()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("parse last update: %w", err)
	}
	if err == nil {
		state.LastUpdate = time.UnixMilli(updateMs)
	}

	return state, nil
}

// recordScript writes a rate limit hit atomically. The cooldown key is only
// replaced when the new window ends later, so a process with a lagging clock
// cannot shorten a window another process opened.
//
// KEYS: cooldown_until, hits, last_status, last_update
// ARGV: until (unix ms), ttl (ms), status, now (unix ms)
var recordScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local extended = 0
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	extended = 1
end
redis.call('INCR', KEYS[2])
redis.call('SET', KEYS[3], ARGV[3])
redis.call('SET', KEYS[4], ARGV[4])
return extended
`)

// Record implements StateStore. Like MemoryStateStore, an open window is
// only ever extended.
func (r *RedisStateStore) Record(ctx context.Context, until time.Time, status int, now time.Time) error {
	ttl := until.Sub(now)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	keys := []string{RedisKeyCooldownUntil, RedisKeyHits, RedisKeyLastStatus, RedisKeyLastUpdate}
	err := recordScript.Run(ctx, r.redis, keys,
		until.UnixMilli(), ttl.Milliseconds(), status, now.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
