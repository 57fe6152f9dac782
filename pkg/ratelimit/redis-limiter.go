package ratelimit

import (
	"context"
	"fmt"
	"reelcache/pkg/models"
	"reelcache/pkg/utils/logger"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and consumes atomically so that replicas sharing
// one redis see the same bucket.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local max_tokens = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local window = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(state[1]) or max_tokens
	local last_refill = tonumber(state[2]) or now

	local tokens_to_add = math.floor((now - last_refill) * refill_rate)
	if tokens_to_add > 0 then
		tokens = math.min(tokens + tokens_to_add, max_tokens)
		last_refill = now
	end

	local allowed = 0
	if tokens > 0 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
	redis.call('EXPIRE', key, window * 2)

	local seconds_to_reset = 0
	if max_tokens > tokens and refill_rate > 0 then
		seconds_to_reset = math.ceil((max_tokens - tokens) / refill_rate)
	end

	return {allowed, tokens, now + seconds_to_reset}
`)

// RedisRateLimiter implements distributed rate limiting using Redis
type RedisRateLimiter struct {
	client    *redis.Client
	namespace string
	maxTokens int64
	window    time.Duration
	failOpen  bool
	timeout   time.Duration
	logger    *logger.Logger
}

func NewRedisRateLimiter(config *models.RedisConfig, maxRequests int64, window time.Duration, logger *logger.Logger) *RedisRateLimiter {
	db := 0
	if config.DB != nil {
		db = *config.DB
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       db,
	})

	namespace := config.KeyNamespace
	if namespace == "" {
		namespace = "reelcache:ratelimit:"
	} else if namespace[len(namespace)-1] != ':' {
		namespace += ":"
	}

	failOpen := true
	if config.FailOpen != nil {
		failOpen = *config.FailOpen
	}

	return &RedisRateLimiter{
		client:    client,
		namespace: namespace,
		maxTokens: maxRequests,
		window:    window,
		failOpen:  failOpen,
		timeout:   time.Second,
		logger:    logger,
	}
}

// Allow runs the token bucket script for key.
// Returns: allowed (bool), remaining (int64), resetTime (time.Time)
func (r *RedisRateLimiter) Allow(key string) (bool, int64, time.Time) {
	now := time.Now()

	refillRate := float64(r.maxTokens) / r.window.Seconds()
	if refillRate < 0.01 {
		refillRate = 0.01
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	values, err := tokenBucketScript.Run(ctx, r.client, []string{r.key(key)},
		r.maxTokens,
		refillRate,
		now.Unix(),
		int64(r.window.Seconds()),
	).Int64Slice()
	if err != nil || len(values) < 3 {
		r.logger.Warn(fmt.Sprintf("Redis rate limiter unavailable (failOpen=%t): %v", r.failOpen, err))
		if r.failOpen {
			return true, r.maxTokens, now.Add(r.window)
		}
		return false, 0, now.Add(r.window)
	}

	return values[0] == 1, values[1], time.Unix(values[2], 0)
}

func (r *RedisRateLimiter) Reset(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn(fmt.Sprintf("Failed to reset rate limit for %s: %v", key, err))
	}
}

func (r *RedisRateLimiter) key(k string) string {
	return fmt.Sprintf("%s%s", r.namespace, k)
}

func (r *RedisRateLimiter) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}
