package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExchange indicates the authorization-code exchange failed
	ErrTokenExchange = errors.New("provider: code exchange failed")

	// ErrTokenRefresh indicates the refresh call failed; the held refresh
	// token is no longer usable and the user must re-authenticate
	ErrTokenRefresh = errors.New("provider: token refresh failed")

	// ErrInvalidResponse indicates the provider returned a 2xx with a body
	// we could not parse
	ErrInvalidResponse = errors.New("provider: invalid token response")
)

// UpstreamError is a non-2xx response from a provider's resource API.
// Unlike token errors, its status and message are safe to relay to the
// client: they describe the user's own data request, not credentials.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Message)
}
