package bootstrap

import (
	"fmt"
	"log"

	"github.com/go-vitals/vitals/internal/authflow"
	"github.com/go-vitals/vitals/internal/cache"
	"github.com/go-vitals/vitals/internal/client"
	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/handlers"
	"github.com/go-vitals/vitals/internal/metrics"
)

// handlerSet groups the HTTP handlers the router mounts.
type handlerSet struct {
	Auth      *handlers.AuthHandler
	Resources *handlers.ResourceHandler
	Insights  *handlers.InsightsHandler
}

// initializeHandlers creates all application handlers
func initializeHandlers(
	cfg *config.Config,
	orchs map[string]*authflow.Orchestrator,
	respCache cache.Cache,
	m metrics.Recorder,
) (handlerSet, error) {
	insights, err := initializeInsightsHandler(cfg, m)
	if err != nil {
		return handlerSet{}, err
	}

	return handlerSet{
		Auth:      handlers.NewAuthHandler(orchs, cfg.FrontendURL, m),
		Resources: handlers.NewResourceHandler(orchs, respCache, cfg.CacheTTL, m),
		Insights:  insights,
	}, nil
}

// initializeInsightsHandler builds the insights proxy. An unset upstream URL
// leaves it in the not-configured state (answers 503).
func initializeInsightsHandler(
	cfg *config.Config,
	m metrics.Recorder,
) (*handlers.InsightsHandler, error) {
	if cfg.InsightsAPIURL == "" {
		return handlers.NewInsightsHandler("", nil, m), nil
	}

	retryClient, err := client.NewInsightsClient(
		cfg.InsightsAPIKey,
		cfg.InsightsTimeout,
		cfg.InsightsMaxRetries,
		cfg.InsightsRetryDelay,
		cfg.InsightsMaxDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create insights client: %w", err)
	}

	log.Println("Insights upstream enabled")
	return handlers.NewInsightsHandler(cfg.InsightsAPIURL, retryClient, m), nil
}
