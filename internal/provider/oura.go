package provider

import (
	"context"
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

// Oura is the token client for the Oura ring API. Its token endpoint
// expects standard form-encoded OAuth bodies.
type Oura struct {
	cfg    config.ProviderConfig
	oauth  *oauth2.Config
	client *http.Client
	now    func() time.Time
}

// NewOura creates an Oura token client. The http.Client should carry a
// bounded timeout; provider calls are never retried.
func NewOura(cfg config.ProviderConfig, client *http.Client) *Oura {
	return &Oura{
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
func (o *Oura) Name() string { return "oura" }

// AuthCodeURL builds the Oura authorization URL for the login redirect.
func (o *Oura) AuthCodeURL(state string) string {
	return o.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (o *Oura) Exchange(ctx context.Context, code string) (*credential.Record, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {o.cfg.ClientID},
		"client_secret": {o.cfg.ClientSecret},
		"redirect_uri":  {o.cfg.RedirectURI},
	}

	rec, err := o.postToken(ctx, form, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}
	return rec, nil
}

// Refresh mints a new token pair from the refresh token. Oura rotates
// refresh tokens on every refresh, so the response always replaces it.
func (o *Oura) Refresh(ctx context.Context, refreshToken string) (*credential.Record, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {o.cfg.ClientID},
		"client_secret": {o.cfg.ClientSecret},
	}

	rec, err := o.postToken(ctx, form, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	return rec, nil
}

// Fetch performs an authenticated GET against the Oura v2 API.
func (o *Oura) Fetch(
	ctx context.Context,
	accessToken, path string,
	query url.Values,
) ([]byte, error) {
	return fetchResource(ctx, o.client, o.Name(), o.cfg.APIURL, path, query, accessToken)
}

// postToken posts a form-encoded body to the token endpoint and decodes
// the response into a stamped credential record.
func (o *Oura) postToken(
	ctx context.Context,
	form url.Values,
	prevRefresh string,
) (*credential.Record, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		o.cfg.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
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

	return decodeTokenResponse(body, prevRefresh, o.now())
}
