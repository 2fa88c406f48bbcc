// Package client builds the outbound HTTP clients used to talk to the
// OAuth providers and the insights upstream.
package client

import (
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/appleboy/go-httpclient"
	retry "github.com/appleboy/go-httpretry"
)

// NewProviderClient creates the HTTP client for provider token and resource
// calls: bounded timeout, single attempt. Token-lifecycle operations are
// deliberately not retried — a duplicated refresh would burn a rotated
// refresh token.
func NewProviderClient(timeout time.Duration) (*http.Client, error) {
	client, err := httpclient.NewAuthClient(
		httpclient.AuthModeNone,
		"",
		httpclient.WithTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}
	return client, nil
}

// NewInsightsClient creates the retrying HTTP client for the slow insights
// upstream. Insights calls are idempotent, so transient failures retry
// with exponential backoff. A non-empty apiKey is sent as a bearer
// Authorization header on every request.
func NewInsightsClient(
	apiKey string,
	timeout time.Duration,
	maxRetries int,
	retryDelay, maxRetryDelay time.Duration,
) (*retry.Client, error) {
	authMode := httpclient.AuthModeNone
	secret := ""
	if apiKey != "" {
		authMode = httpclient.AuthModeSimple
		secret = "Bearer " + apiKey
	}

	client, err := httpclient.NewAuthClient(
		authMode,
		secret,
		httpclient.WithTimeout(timeout),
		httpclient.WithHeaderName("Authorization"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create insights client: %w", err)
	}

	retryClient, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(client),
		retry.WithMaxRetries(maxRetries),
		retry.WithInitialRetryDelay(retryDelay),
		retry.WithMaxRetryDelay(maxRetryDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}

	return retryClient, nil
}
