package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/credential"
)

// Strava is the token client for the Strava API. Unlike Oura, its token
// endpoint accepts JSON bodies, and token responses carry an `athlete`
// profile snapshot which is round-tripped opaquely in the record extras.
type Strava struct {
	cfg    config.ProviderConfig
	oauth  *oauth2.Config
	client *http.Client
	now    func() time.Time
}

// NewStrava creates a Strava token client.
func NewStrava(cfg config.ProviderConfig, client *http.Client) *Strava {
	return &Strava{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		client: client,
		now:    time.Now,
	}
}

// Name returns the provider identifier.
func (s *Strava) Name() string { return "strava" }

// AuthCodeURL builds the Strava authorization URL. Strava expects its
// scope list comma-separated in a single parameter.
func (s *Strava) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(
		state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
		oauth2.SetAuthURLParam("scope", strings.Join(s.cfg.Scopes, ",")),
	)
}

// Exchange trades an authorization code for tokens.
func (s *Strava) Exchange(ctx context.Context, code string) (*credential.Record, error) {
	payload := map[string]string{
		"client_id":     s.cfg.ClientID,
		"client_secret": s.cfg.ClientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
	}

	rec, err := s.postToken(ctx, payload, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	return rec, nil
}

// Refresh mints a new token pair from the refresh token.
func (s *Strava) Refresh(ctx context.Context, refreshToken string) (*credential.Record, error) {
	payload := map[string]string{
		"client_id":     s.cfg.ClientID,
		"client_secret": s.cfg.ClientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}

	rec, err := s.postToken(ctx, payload, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	return rec, nil
}

// Fetch performs an authenticated GET against the Strava v3 API.
func (s *Strava) Fetch(
	ctx context.Context,
	accessToken, path string,
	query url.Values,
) ([]byte, error) {
	return fetchResource(ctx, s.client, s.Name(), s.cfg.APIURL, path, query, accessToken)
}

// postToken posts a JSON body to the token endpoint and decodes the
// response into a stamped credential record.
func (s *Strava) postToken(
	ctx context.Context,
	payload map[string]string,
	prevRefresh string,
) (*credential.Record, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.cfg.TokenURL,
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return decodeTokenResponse(body, prevRefresh, s.now())
}
