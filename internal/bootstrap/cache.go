package bootstrap

import (
	"log"
	"time"

	"github.com/go-vitals/vitals/internal/cache"
	"github.com/go-vitals/vitals/internal/config"
)

// initializeResponseCache creates the resource response cache, or nil when
// caching is disabled.
func initializeResponseCache(cfg *config.Config) cache.Cache {
	switch cfg.CacheType {
	case config.CacheTypeMemory:
		log.Println("Response cache: memory")
		return cache.NewMemoryCache()
	case config.CacheTypeRedisAside:
		c, err := cache.NewRueidisAsideCache(
			cfg.RedisAddr,
			cfg.RedisPassword,
			cfg.RedisDB,
			"resp:",
			30*time.Second,
		)
		if err != nil {
			log.Fatalf("Failed to initialize redis-aside cache: %v", err)
		}
		log.Println("Response cache: redis-aside")
		return c
	default:
		return nil
	}
}
