package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vitals/vitals/internal/config"
)

func ouraConfig(tokenURL, apiURL string) config.ProviderConfig {
	return config.ProviderConfig{
		ClientID:     "oura-client",
		ClientSecret: "oura-secret",
		RedirectURI:  "http://localhost:8080/api/auth/oura/callback",
		AuthURL:      "https://cloud.ouraring.com/oauth/authorize",
		TokenURL:     tokenURL,
		APIURL:       apiURL,
		Scopes:       []string{"daily", "tag"},
	}
}

func TestOura_AuthCodeURL(t *testing.T) {
	o := NewOura(ouraConfig("https://api.ouraring.com/oauth/token", ""), http.DefaultClient)

	authURL := o.AuthCodeURL("state-xyz")

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "cloud.ouraring.com", parsed.Host)
	assert.Equal(t, "state-xyz", parsed.Query().Get("state"))
	assert.Equal(t, "oura-client", parsed.Query().Get("client_id"))
	assert.Equal(t, "code", parsed.Query().Get("response_type"))
}

func TestOura_Exchange_PostsFormEncoded(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "new-at",
			"refresh_token": "new-rt",
			"token_type": "Bearer",
			"expires_in": 86400
		}`))
	}))
	defer srv.Close()

	o := NewOura(ouraConfig(srv.URL, ""), srv.Client())

	before := time.Now().Unix()
	rec, err := o.Exchange(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "the-code", gotForm.Get("code"))
	assert.Equal(t, "oura-client", gotForm.Get("client_id"))
	assert.Equal(t, "oura-secret", gotForm.Get("client_secret"))
	assert.Equal(t, "http://localhost:8080/api/auth/oura/callback", gotForm.Get("redirect_uri"))

	assert.Equal(t, "new-at", rec.AccessToken)
	assert.Equal(t, "new-rt", rec.RefreshToken)
	assert.Equal(t, "Bearer", rec.TokenType)
	// expires_at is stamped locally from wall clock + expires_in
	assert.GreaterOrEqual(t, rec.ExpiresAt, before+86400)
}

func TestOura_Exchange_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOura(ouraConfig(srv.URL, ""), srv.Client())

	rec, err := o.Exchange(context.Background(), "bad-code")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestOura_Refresh_RotatesToken(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "rotated-at",
			"refresh_token": "rotated-rt",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer srv.Close()

	o := NewOura(ouraConfig(srv.URL, ""), srv.Client())

	rec, err := o.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", gotForm.Get("grant_type"))
	assert.Equal(t, "old-rt", gotForm.Get("refresh_token"))
	assert.Equal(t, "rotated-at", rec.AccessToken)
	// Provider rotated the refresh token; the old one is gone.
	assert.Equal(t, "rotated-rt", rec.RefreshToken)
}

func TestOura_Refresh_RejectedRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOura(ouraConfig(srv.URL, ""), srv.Client())

	rec, err := o.Refresh(context.Background(), "stale-rt")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrTokenRefresh)
}

func TestOura_Fetch_BearerAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/v2/usercollection/daily_sleep", r.URL.Path)
		assert.Equal(t, "2026-08-01", r.URL.Query().Get("start_date"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	o := NewOura(ouraConfig("", srv.URL), srv.Client())

	body, err := o.Fetch(
		context.Background(),
		"at-1",
		"/v2/usercollection/daily_sleep",
		url.Values{"start_date": {"2026-08-01"}, "end_date": {"2026-08-07"}},
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
}

func TestOura_Fetch_UpstreamErrorRelayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	o := NewOura(ouraConfig("", srv.URL), srv.Client())

	body, err := o.Fetch(context.Background(), "at", "/v2/usercollection/daily_sleep", nil)
	assert.Nil(t, body)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, "rate limit exceeded", upstream.Message)
	assert.Equal(t, "oura", upstream.Provider)
}
