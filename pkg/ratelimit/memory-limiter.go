package ratelimit

import (
	"reelcache/pkg/utils/logger"
	"sync"
	"time"
)

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens         int64
	maxTokens      int64
	refillRate     float64 // tokens per second
	lastRefillTime time.Time
	mu             sync.Mutex
}

// MemoryRateLimiter implements in-memory token bucket rate limiting
type MemoryRateLimiter struct {
	buckets   map[string]*TokenBucket
	mu        sync.Mutex
	maxTokens int64
	window    time.Duration
	ttl       time.Duration // idle buckets older than this are dropped
	logger    *logger.Logger
	now       func() time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

func NewMemoryRateLimiter(maxRequests int64, window time.Duration, logger *logger.Logger) *MemoryRateLimiter {
	limiter := &MemoryRateLimiter{
		buckets:   make(map[string]*TokenBucket),
		maxTokens: maxRequests,
		window:    window,
		ttl:       window * 2,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

// Allow consumes one token for key.
// Returns: allowed (bool), remaining (int64), resetTime (time.Time)
func (m *MemoryRateLimiter) Allow(key string) (bool, int64, time.Time) {
	now := m.now()

	m.mu.Lock()
	bucket, exists := m.buckets[key]
	if !exists {
		bucket = &TokenBucket{
			tokens:         m.maxTokens,
			maxTokens:      m.maxTokens,
			refillRate:     float64(m.maxTokens) / m.window.Seconds(),
			lastRefillTime: now,
		}
		m.buckets[key] = bucket
	}
	m.mu.Unlock()

	allowed, remaining, resetTime := bucket.consume(now)
	if !allowed {
		m.logger.Debug("Rate limit check failed")
	}
	return allowed, remaining, resetTime
}

func (tb *TokenBucket) consume(now time.Time) (bool, int64, time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.maxTokens <= 0 {
		return false, 0, now
	}

	// Only whole tokens are added; the remainder carries over.
	tokensToAdd := int64(now.Sub(tb.lastRefillTime).Seconds() * tb.refillRate)
	if tokensToAdd > 0 {
		tb.tokens = min(tb.tokens+tokensToAdd, tb.maxTokens)
		tb.lastRefillTime = tb.lastRefillTime.Add(time.Duration(float64(tokensToAdd) / tb.refillRate * float64(time.Second)))
		if tb.tokens == tb.maxTokens {
			tb.lastRefillTime = now
		}
	}

	allowed := false
	if tb.tokens > 0 {
		tb.tokens--
		allowed = true
	}

	return allowed, tb.tokens, tb.resetTime(now)
}

// resetTime is when the bucket will be full again
func (tb *TokenBucket) resetTime(now time.Time) time.Time {
	if tb.tokens >= tb.maxTokens || tb.refillRate <= 0 {
		return now
	}
	secondsNeeded := float64(tb.maxTokens-tb.tokens) / tb.refillRate
	return now.Add(time.Duration(secondsNeeded * float64(time.Second)))
}

func (m *MemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep(m.now())
		}
	}
}

func (m *MemoryRateLimiter) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, bucket := range m.buckets {
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastRefillTime)
		bucket.mu.Unlock()

		if idle > m.ttl {
			delete(m.buckets, key)
		}
	}
}

func (m *MemoryRateLimiter) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
}

// Health always succeeds; there is no external dependency.
func (m *MemoryRateLimiter) Health() error {
	return nil
}

func (m *MemoryRateLimiter) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		m.buckets = make(map[string]*TokenBucket)
		m.mu.Unlock()
	})
	return nil
}
