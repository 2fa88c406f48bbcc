package bootstrap

import (
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-vitals/vitals/internal/cache"
	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/handlers"
	"github.com/go-vitals/vitals/internal/metrics"
	"github.com/go-vitals/vitals/internal/middleware"
)

// setupRouter configures middleware and mounts all routes.
func setupRouter(
	cfg *config.Config,
	hs handlerSet,
	m metrics.Recorder,
	respCache cache.Cache,
) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(metrics.HTTPMetricsMiddleware(m))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   600, // login state only needs to survive the redirect
		Secure:   cfg.CookieSecure,
		HttpOnly: true,
	})
	r.Use(sessions.Sessions("vitals_session", store))

	// OAuth flow
	r.GET("/api/auth/:provider", hs.Auth.Login)
	r.GET("/api/auth/:provider/callback", hs.Auth.Callback)

	// Status
	r.GET("/api/oura/auth/status", hs.Auth.Status("oura", "isOuraAuthed", ""))
	r.GET("/api/strava/auth/status", hs.Auth.Status("strava", "isStravaAuthed", "athlete"))

	// Resource proxies
	r.GET("/api/oura/sleep", hs.Resources.OuraResource("sleep", "/v2/usercollection/daily_sleep"))
	r.GET("/api/oura/readiness", hs.Resources.OuraResource("readiness", "/v2/usercollection/daily_readiness"))
	r.GET("/api/oura/tags", hs.Resources.OuraResource("tags", "/v2/usercollection/enhanced_tag"))
	r.GET("/api/strava/activities", hs.Resources.StravaActivities)

	// Insights (rate limited; the upstream is slow and expensive)
	insights := r.Group("/api/insights")
	if cfg.RateLimitEnabled {
		limiter, err := newRateLimiter(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		insights.Use(limiter)
	}
	insights.POST("", hs.Insights.Generate)

	r.GET("/healthz", handlers.Healthz(respCache))

	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r, nil
}
