package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vitals/vitals/internal/config"
)

func stravaConfig(tokenURL, apiURL string) config.ProviderConfig {
	return config.ProviderConfig{
		ClientID:     "strava-client",
		ClientSecret: "strava-secret",
		RedirectURI:  "http://localhost:8080/api/auth/strava/callback",
		AuthURL:      "https://www.strava.com/oauth/authorize",
		TokenURL:     tokenURL,
		APIURL:       apiURL,
		Scopes:       []string{"activity:read_all"},
	}
}

func TestStrava_AuthCodeURL(t *testing.T) {
	s := NewStrava(stravaConfig("https://www.strava.com/oauth/token", ""), http.DefaultClient)

	authURL := s.AuthCodeURL("state-abc")

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "www.strava.com", parsed.Host)
	assert.Equal(t, "state-abc", parsed.Query().Get("state"))
	assert.Equal(t, "auto", parsed.Query().Get("approval_prompt"))
	assert.Equal(t, "activity:read_all", parsed.Query().Get("scope"))
}

func TestStrava_Exchange_PostsJSON(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "strava-at",
			"refresh_token": "strava-rt",
			"token_type": "Bearer",
			"expires_in": 21600,
			"athlete": {"id": 12345, "username": "runner"}
		}`))
	}))
	defer srv.Close()

	s := NewStrava(stravaConfig(srv.URL, ""), srv.Client())

	before := time.Now().Unix()
	rec, err := s.Exchange(context.Background(), "code-1")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", gotBody["grant_type"])
	assert.Equal(t, "code-1", gotBody["code"])
	assert.Equal(t, "strava-client", gotBody["client_id"])
	assert.Equal(t, "strava-secret", gotBody["client_secret"])

	assert.Equal(t, "strava-at", rec.AccessToken)
	assert.GreaterOrEqual(t, rec.ExpiresAt, before+21600)

	// The athlete snapshot rides along opaquely.
	require.Contains(t, rec.Extra, "athlete")
	assert.JSONEq(t, `{"id":12345,"username":"runner"}`, string(rec.Extra["athlete"]))
}

func TestStrava_Refresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "refresh_token", body["grant_type"])
		assert.Equal(t, "keep-rt", body["refresh_token"])

		// No refresh_token in the response: the previous one stays valid.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-at","expires_in":21600}`))
	}))
	defer srv.Close()

	s := NewStrava(stravaConfig(srv.URL, ""), srv.Client())

	rec, err := s.Refresh(context.Background(), "keep-rt")
	require.NoError(t, err)

	assert.Equal(t, "fresh-at", rec.AccessToken)
	assert.Equal(t, "keep-rt", rec.RefreshToken)
	assert.Equal(t, "Bearer", rec.TokenType) // defaulted
}

func TestStrava_Refresh_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Bad Request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewStrava(stravaConfig(srv.URL, ""), srv.Client())

	rec, err := s.Refresh(context.Background(), "dead-rt")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrTokenRefresh)
}

func TestStrava_Exchange_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	s := NewStrava(stravaConfig(srv.URL, ""), srv.Client())

	rec, err := s.Exchange(context.Background(), "code")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestStrava_Exchange_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"refresh_token":"rt","expires_in":60}`))
	}))
	defer srv.Close()

	s := NewStrava(stravaConfig(srv.URL, ""), srv.Client())

	rec, err := s.Exchange(context.Background(), "code")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestStrava_Fetch_UpstreamErrorFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Record Not Found"}`))
	}))
	defer srv.Close()

	s := NewStrava(stravaConfig("", srv.URL), srv.Client())

	_, err := s.Fetch(context.Background(), "at", "/activities/1", nil)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.StatusCode)
	assert.Equal(t, "Record Not Found", upstream.Message)
}
