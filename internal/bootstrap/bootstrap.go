// Package bootstrap wires configuration, outbound clients, orchestrators
// and the HTTP layer into a running server.
package bootstrap

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/go-vitals/vitals/internal/authflow"
	"github.com/go-vitals/vitals/internal/cache"
	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/metrics"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	MetricsRecorder metrics.Recorder
	ResponseCache   cache.Cache

	// Credential layer
	Orchestrators map[string]*authflow.Orchestrator

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateProviders(); err != nil {
		return err
	}

	// Phase 2: Initialize infrastructure
	app.initializeInfrastructure()

	// Phase 3: Initialize credential layer
	if err := app.initializeCredentialLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	if err := app.initializeHTTPLayer(); err != nil {
		return err
	}

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up metrics and the response cache
func (app *Application) initializeInfrastructure() {
	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)
	if app.Config.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	}

	app.ResponseCache = initializeResponseCache(app.Config)
}

// initializeCredentialLayer sets up the per-provider orchestrators
func (app *Application) initializeCredentialLayer() error {
	orchs, err := initializeOrchestrators(app.Config, app.MetricsRecorder)
	if err != nil {
		return err
	}
	app.Orchestrators = orchs
	return nil
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() error {
	handlerSet, err := initializeHandlers(
		app.Config,
		app.Orchestrators,
		app.ResponseCache,
		app.MetricsRecorder,
	)
	if err != nil {
		return err
	}
	app.HandlerSet = handlerSet

	router, err := setupRouter(
		app.Config,
		app.HandlerSet,
		app.MetricsRecorder,
		app.ResponseCache,
	)
	if err != nil {
		return err
	}
	app.Router = router

	app.Server = createHTTPServer(app.Config, app.Router)
	return nil
}
