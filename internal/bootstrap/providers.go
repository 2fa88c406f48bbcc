package bootstrap

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-vitals/vitals/internal/authflow"
	"github.com/go-vitals/vitals/internal/client"
	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/credential"
	"github.com/go-vitals/vitals/internal/metrics"
	"github.com/go-vitals/vitals/internal/provider"
)

// Cookie names, one per provider. The cookie is the session: it carries
// the full credential record and the server stores nothing.
const (
	OuraCookieName   = "oura_token"
	StravaCookieName = "strava_token"
)

// initializeOrchestrators builds one authflow orchestrator per configured
// provider, all sharing the outbound token/resource HTTP client.
func initializeOrchestrators(
	cfg *config.Config,
	m metrics.Recorder,
) (map[string]*authflow.Orchestrator, error) {
	// One client serves both token and resource calls; it carries the
	// longer of the two timeouts.
	timeout := cfg.TokenTimeout
	if cfg.ResourceTimeout > timeout {
		timeout = cfg.ResourceTimeout
	}
	providerHTTP, err := client.NewProviderClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider HTTP client: %w", err)
	}

	orchs := make(map[string]*authflow.Orchestrator)
	if cfg.Oura.Enabled() {
		orchs["oura"] = authflow.New(
			provider.NewOura(cfg.Oura, providerHTTP),
			newCodec(cfg, OuraCookieName),
			m,
		)
		log.Println("Oura provider enabled")
	}
	if cfg.Strava.Enabled() {
		orchs["strava"] = authflow.New(
			provider.NewStrava(cfg.Strava, providerHTTP),
			newCodec(cfg, StravaCookieName),
			m,
		)
		log.Println("Strava provider enabled")
	}

	if len(orchs) == 0 {
		return nil, errors.New(
			"no providers configured; set OURA_CLIENT_ID and/or STRAVA_CLIENT_ID",
		)
	}
	return orchs, nil
}

func newCodec(cfg *config.Config, name string) *credential.Codec {
	return &credential.Codec{
		Name:   name,
		Secure: cfg.CookieSecure,
		MaxAge: cfg.CookieMaxAge,
	}
}
