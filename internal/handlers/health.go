package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/go-vitals/vitals/internal/cache"
)

// Healthz reports liveness, including cache backend health when one is
// configured.
func Healthz(respCache cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if respCache != nil {
			if err := respCache.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "degraded",
					"cache":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
