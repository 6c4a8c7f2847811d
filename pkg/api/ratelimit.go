package api

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// LimiterStore decides whether a client may make one more request. When it
// refuses, retryAfter suggests how long to back off.
type LimiterStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// MemoryLimiter keeps one token bucket per client in process memory.
type MemoryLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	stop     chan struct{}
	once     sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows rps sustained requests per client with the given burst.
// Idle clients are forgotten after three minutes.
func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	ml := &MemoryLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go ml.cleanupVisitors(time.Minute, 3*time.Minute)
	return ml
}

func (ml *MemoryLimiter) getVisitor(key string) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	v, ok := ml.visitors[key]
	if !ok {
		l := rate.NewLimiter(ml.limit, ml.burst)
		ml.visitors[key] = &visitor{limiter: l, lastSeen: time.Now()}
		return l
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (ml *MemoryLimiter) cleanupVisitors(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ml.stop:
			return
		case <-ticker.C:
			ml.mu.Lock()
			for key, v := range ml.visitors {
				if time.Since(v.lastSeen) > idle {
					delete(ml.visitors, key)
				}
			}
			ml.mu.Unlock()
		}
	}
}

// Allow implements LimiterStore.
func (ml *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	r := ml.getVisitor(key).Reserve()
	if !r.OK() {
		return false, time.Second, nil
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

// Close stops the cleanup goroutine.
func (ml *MemoryLimiter) Close() {
	ml.once.Do(func() { close(ml.stop) })
}

// redisTokenBucketScript runs the token bucket atomically in Redis.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = now (unix seconds, microsecond precision)
// Returns {allowed, tokens}.
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, math.ceil(capacity / rate) + 60)

return {allowed, tostring(tokens)}
`)

// RedisLimiter shares token buckets between companion replicas.
type RedisLimiter struct {
	client redis.UniversalClient
	rps    float64
	burst  int
	prefix string
}

// NewRedisLimiter creates a limiter backed by the Redis server at addr.
func NewRedisLimiter(addr string, rps float64, burst int) *RedisLimiter {
	return NewRedisLimiterWithClient(redis.NewClient(&redis.Options{Addr: addr}), rps, burst)
}

// NewRedisLimiterWithClient uses an existing client.
func NewRedisLimiterWithClient(client redis.UniversalClient, rps float64, burst int) *RedisLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RedisLimiter{client: client, rps: rps, burst: burst, prefix: "ezra:ratelimit:"}
}

// Allow implements LimiterStore.
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, rl.client, []string{rl.prefix + key}, rl.rps, rl.burst, 1, now).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis limiter: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, 0, fmt.Errorf("redis limiter: unexpected script result %T", res)
	}
	if allowed, _ := results[0].(int64); allowed == 1 {
		return true, 0, nil
	}

	var tokens float64
	if s, ok := results[1].(string); ok {
		_, _ = fmt.Sscan(s, &tokens)
	}
	wait := math.Max(1-tokens, 0) / rl.rps
	return false, time.Duration(wait * float64(time.Second)), nil
}

// Close closes the Redis client.
func (rl *RedisLimiter) Close() error {
	return rl.client.Close()
}
