package bootstrap

import (
	"github.com/gin-gonic/gin"

	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/middleware"
)

// newRateLimiter builds the rate limiting middleware for the configured
// store backend.
func newRateLimiter(cfg *config.Config) (gin.HandlerFunc, error) {
	if cfg.RateLimitStore == config.RateLimitStoreRedis {
		return middleware.NewRedisRateLimiter(
			cfg.RateLimitPerMinute,
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
		)
	}
	return middleware.NewMemoryRateLimiter(cfg.RateLimitPerMinute)
}
