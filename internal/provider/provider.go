// Package provider implements the OAuth wire protocol for the two upstream
// services. Each client owns three network operations: authorization-code
// exchange, token refresh and authenticated resource fetch. The two
// providers disagree on token-endpoint encoding (Oura wants form bodies,
// Strava wants JSON) so each client speaks its provider's dialect exactly.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-vitals/vitals/internal/credential"
)

// TokenClient is the per-provider OAuth client used by the orchestrator
// and the resource proxy handlers.
type TokenClient interface {
	// Name returns the provider identifier ("oura", "strava").
	Name() string

	// AuthCodeURL builds the provider's authorization redirect URL.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a credential record.
	// The returned record has ExpiresAt already stamped.
	Exchange(ctx context.Context, code string) (*credential.Record, error)

	// Refresh mints a new credential record from a refresh token.
	// When the provider rotates the refresh token the new one replaces the
	// old; when it omits one, the previous token is carried forward.
	Refresh(ctx context.Context, refreshToken string) (*credential.Record, error)

	// Fetch performs an authenticated GET against the provider's API.
	// Non-2xx responses surface as *UpstreamError with the upstream
	// status and message preserved.
	Fetch(ctx context.Context, accessToken, path string, query url.Values) ([]byte, error)
}

// decodeTokenResponse parses a 2xx token-endpoint body into a stamped
// credential record. prevRefresh is carried forward when the provider
// does not rotate the refresh token.
func decodeTokenResponse(body []byte, prevRefresh string, now time.Time) (*credential.Record, error) {
	var rec credential.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if rec.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrInvalidResponse)
	}
	if rec.TokenType == "" {
		rec.TokenType = "Bearer"
	}
	if rec.RefreshToken == "" {
		rec.RefreshToken = prevRefresh
	}

	rec.Stamp(now)
	return &rec, nil
}

// fetchResource is the shared authenticated-GET implementation.
func fetchResource(
	ctx context.Context,
	client *http.Client,
	providerName, baseURL, path string,
	query url.Values,
	accessToken string,
) ([]byte, error) {
	endpoint := baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s API request failed: %w", providerName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", providerName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(body, resp.Status),
		}
	}

	return body, nil
}

// upstreamMessage extracts a human-readable message from an error body,
// falling back to the HTTP status line.
func upstreamMessage(body []byte, status string) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}

	preview := string(body)
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if preview != "" {
		return preview
	}
	return status
}
