package ratelimitmanager

import (
	"reelcache/pkg/models"
	"reelcache/pkg/ratelimit"
	"reelcache/pkg/utils/logger"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
)

func newManager(t *testing.T, requests int64) *RateLimitManager {
	config := &models.RateLimitConfig{
		Enabled:  true,
		Requests: requests,
		Window:   time.Minute,
		Storage:  "memory",
	}
	limiter, err := ratelimit.NewRateLimiter(config, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to create limiter: %v", err)
	}
	manager := NewRateLimitManager(limiter, config, logger.Nop())
	t.Cleanup(func() { manager.Close() })
	return manager
}

func requestFrom(ip string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Forwarded-For", ip)
	return ctx
}

func TestNewRateLimitManager_NilLimiter(t *testing.T) {
	manager := NewRateLimitManager(nil, nil, logger.Nop())
	defer manager.Close()

	if manager.Enabled() {
		t.Error("Manager without limiter should be disabled")
	}
	if result := manager.Check(requestFrom("10.0.0.1")); !result.Allowed {
		t.Error("Should allow when limiter is nil")
	}
}

func TestRateLimitManager_Check(t *testing.T) {
	manager := newManager(t, 2)

	for i := 0; i < 2; i++ {
		if result := manager.Check(requestFrom("10.0.0.1")); !result.Allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}
	result := manager.Check(requestFrom("10.0.0.1"))
	if result.Allowed {
		t.Error("Third request should be blocked")
	}
	if result.Key != "10.0.0.1" || result.Limit != 2 {
		t.Errorf("Unexpected result %+v", result)
	}
}

func TestRateLimitManager_Guard(t *testing.T) {
	manager := newManager(t, 1)
	calls := 0
	handler := manager.Guard(func(ctx *fasthttp.RequestCtx) {
		calls++
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	first := requestFrom("10.0.0.1")
	handler(first)
	if first.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("Expected 200, got %d", first.Response.StatusCode())
	}
	if got := string(first.Response.Header.Peek("X-RateLimit-Remaining")); got != "0" {
		t.Errorf("Expected remaining header 0, got %q", got)
	}

	second := requestFrom("10.0.0.1")
	handler(second)
	if second.Response.StatusCode() != fasthttp.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", second.Response.StatusCode())
	}
	if string(second.Response.Body()) != "Rate limit exceeded" {
		t.Errorf("Unexpected body %q", second.Response.Body())
	}
	if len(second.Response.Header.Peek("Retry-After")) == 0 {
		t.Error("Expected Retry-After header")
	}
	if calls != 1 {
		t.Errorf("Handler should run once, ran %d times", calls)
	}
}

func TestRateLimitManager_GuardDisabledPassesThrough(t *testing.T) {
	manager := NewRateLimitManager(nil, &models.RateLimitConfig{}, logger.Nop())
	defer manager.Close()

	calls := 0
	handler := manager.Guard(func(ctx *fasthttp.RequestCtx) { calls++ })
	for i := 0; i < 5; i++ {
		ctx := requestFrom("10.0.0.1")
		handler(ctx)
		if len(ctx.Response.Header.Peek("X-RateLimit-Limit")) != 0 {
			t.Error("Disabled manager should not set headers")
		}
	}
	if calls != 5 {
		t.Errorf("Expected 5 calls, got %d", calls)
	}
}

func TestRateLimitManager_CloseIdempotent(t *testing.T) {
	manager := newManager(t, 1)
	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}
	if err := manager.Close(); err != nil {
		t.Fatal(err)
	}
}
