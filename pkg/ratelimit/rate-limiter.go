package ratelimit

import (
	"fmt"
	"reelcache/pkg/models"
	"reelcache/pkg/utils/logger"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	STORAGE_MEMORY = "memory"
	STORAGE_REDIS  = "redis"
)

const (
	KEY_TYPE_IP     = "ip"
	KEY_TYPE_HEADER = "header"
)

// IRateLimiter defines the interface for rate limiting implementations
type IRateLimiter interface {
	Allow(key string) (bool, int64, time.Time)
	Reset(key string)
	Health() error
	Close() error
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	ResetTime time.Time
	Limit     int64
	Key       string
}

// SetDefaults fills in zero values of the RateLimitConfig
func SetDefaults(config *models.RateLimitConfig) {
	if config == nil {
		return
	}

	if config.Requests == 0 {
		config.Requests = 60
	}
	if config.Window == 0 {
		config.Window = time.Minute
	}
	if config.StatusCode == 0 {
		config.StatusCode = fasthttp.StatusTooManyRequests
	}
	if config.Storage == "" {
		config.Storage = STORAGE_MEMORY
	}
	if len(config.KeyBy) == 0 {
		config.KeyBy = []string{KEY_TYPE_IP}
	}
	if config.Message == "" {
		config.Message = "Rate limit exceeded"
	}
}

// NewRateLimiter returns nil when rate limiting is disabled
func NewRateLimiter(config *models.RateLimitConfig, logger *logger.Logger) (IRateLimiter, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	SetDefaults(config)

	switch strings.ToLower(config.Storage) {
	case STORAGE_MEMORY:
		return NewMemoryRateLimiter(config.Requests, config.Window, logger), nil
	case STORAGE_REDIS:
		if config.Redis == nil {
			return nil, fmt.Errorf("redis configuration required for redis rate limiter")
		}
		return NewRedisRateLimiter(config.Redis, config.Requests, config.Window, logger), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit storage type: %s", config.Storage)
	}
}

// BuildKey builds a rate limit key based on the configuration
func BuildKey(ctx *fasthttp.RequestCtx, config *models.RateLimitConfig) string {
	if config == nil || len(config.KeyBy) == 0 {
		return ClientIP(ctx)
	}

	var parts []string
	for _, keyType := range config.KeyBy {
		switch {
		case keyType == KEY_TYPE_IP:
			parts = append(parts, ClientIP(ctx))
		case strings.HasPrefix(keyType, KEY_TYPE_HEADER+":"):
			headerName := strings.TrimPrefix(keyType, KEY_TYPE_HEADER+":")
			if headerValue := string(ctx.Request.Header.Peek(headerName)); headerValue != "" {
				parts = append(parts, headerValue)
			} else {
				// Missing header falls back to IP to avoid one shared bucket
				parts = append(parts, ClientIP(ctx))
			}
		default:
			parts = append(parts, keyType)
		}
	}

	return strings.Join(parts, ":")
}

// ClientIP extracts the client IP from the request
func ClientIP(ctx *fasthttp.RequestCtx) string {
	if xff := string(ctx.Request.Header.Peek("X-Forwarded-For")); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := string(ctx.Request.Header.Peek("X-Real-IP")); xri != "" {
		return xri
	}

	return ctx.RemoteIP().String()
}
