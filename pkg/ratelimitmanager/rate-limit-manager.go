package ratelimitmanager

import (
	"fmt"
	"reelcache/pkg/models"
	"reelcache/pkg/ratelimit"
	"reelcache/pkg/utils/logger"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

const healthInterval = 30 * time.Second

// RateLimitManager guards the control routes with a single limiter backend
type RateLimitManager struct {
	limiter      ratelimit.IRateLimiter
	config       *models.RateLimitConfig
	logger       *logger.Logger
	healthTicker *time.Ticker
	stopChan     chan struct{}
	closeOnce    sync.Once
}

// NewRateLimitManager wraps limiter, which may be nil when rate limiting is
// disabled, and starts periodic health monitoring.
func NewRateLimitManager(limiter ratelimit.IRateLimiter, config *models.RateLimitConfig, logger *logger.Logger) *RateLimitManager {
	manager := &RateLimitManager{
		limiter:  limiter,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	manager.startHealthMonitoring()

	return manager
}

// Enabled reports whether requests are actually checked
func (rlm *RateLimitManager) Enabled() bool {
	return rlm != nil && rlm.limiter != nil && rlm.config != nil && rlm.config.Enabled
}

// Check consumes a token for the client of ctx
func (rlm *RateLimitManager) Check(ctx *fasthttp.RequestCtx) *ratelimit.RateLimitResult {
	if !rlm.Enabled() {
		return &ratelimit.RateLimitResult{Allowed: true, Remaining: -1, Limit: -1}
	}

	key := ratelimit.BuildKey(ctx, rlm.config)
	allowed, remaining, resetTime := rlm.limiter.Allow(key)

	if !allowed {
		rlm.logger.Warn(fmt.Sprintf("Rate limit exceeded for key '%s', reset at %v", key, resetTime))
	}

	return &ratelimit.RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetTime: resetTime,
		Limit:     rlm.config.Requests,
		Key:       key,
	}
}

// Guard wraps next so that it only runs while the client has tokens left
func (rlm *RateLimitManager) Guard(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		result := rlm.Check(ctx)
		rlm.SetHeaders(ctx, result)
		if !result.Allowed {
			rlm.Reject(ctx, result)
			return
		}
		next(ctx)
	}
}

// SetHeaders sets the rate limit headers on the response
func (rlm *RateLimitManager) SetHeaders(ctx *fasthttp.RequestCtx, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit < 0 {
		return
	}

	ctx.Response.Header.Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
	ctx.Response.Header.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
	ctx.Response.Header.Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetTime.Unix()))
}

// Reject writes the configured rate limit response
func (rlm *RateLimitManager) Reject(ctx *fasthttp.RequestCtx, result *ratelimit.RateLimitResult) {
	retryAfter := int(time.Until(result.ResetTime).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	ctx.Response.Header.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	ctx.SetStatusCode(rlm.config.StatusCode)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString(rlm.config.Message)
}

func (rlm *RateLimitManager) startHealthMonitoring() {
	if rlm.limiter == nil {
		return
	}

	rlm.healthTicker = time.NewTicker(healthInterval)

	go func() {
		for {
			select {
			case <-rlm.healthTicker.C:
				rlm.performHealthCheck()
			case <-rlm.stopChan:
				return
			}
		}
	}()
}

func (rlm *RateLimitManager) performHealthCheck() {
	if err := rlm.limiter.Health(); err != nil {
		rlm.logger.Error(fmt.Sprintf("Rate limiter health check failed: %v", err))
	}
}

// Close stops health monitoring and closes the limiter
func (rlm *RateLimitManager) Close() error {
	var err error
	rlm.closeOnce.Do(func() {
		if rlm.healthTicker != nil {
			rlm.healthTicker.Stop()
		}
		close(rlm.stopChan)
		if rlm.limiter != nil {
			err = rlm.limiter.Close()
		}
	})
	return err
}
