// Package credential holds the per-provider OAuth credential record and its
// cookie codec. The browser cookie is the only persistence layer for tokens:
// the server reconstructs the record from the cookie on every request and
// never stores it server-side.
package credential

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// ErrNoCredential indicates the cookie is missing or cannot be decoded.
// A malformed cookie is deliberately indistinguishable from an absent one.
var ErrNoCredential = errors.New("credential: no credential present")

// Reserved JSON keys handled by Record itself. Everything else in the
// token payload is carried opaquely in Extra.
var reservedKeys = map[string]struct{}{
	"access_token":  {},
	"refresh_token": {},
	"token_type":    {},
	"expires_in":    {},
	"expires_at":    {},
}

// Record is the decoded OAuth token bundle for one provider.
//
// ExpiresAt is absolute expiry in unix seconds. It is computed server-side
// at issuance/refresh time (wall clock + expires_in) and is the only field
// consulted for freshness; the relative expires_in is never re-evaluated
// at check time.
type Record struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	ExpiresAt    int64

	// Extra carries provider-specific fields (e.g. Strava's athlete
	// profile snapshot) that are round-tripped without interpretation.
	Extra map[string]json.RawMessage
}

// Fresh reports whether the access token is still valid at the given time.
func (r *Record) Fresh(now time.Time) bool {
	return now.Unix() < r.ExpiresAt
}

// Stamp sets ExpiresAt from the given issuance time and the record's
// ExpiresIn. Call it whenever a record comes back from a provider.
func (r *Record) Stamp(issued time.Time) {
	r.ExpiresAt = issued.Unix() + r.ExpiresIn
}

// MarshalJSON flattens the known fields and the opaque extras into a
// single JSON object, matching the provider's original payload shape.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Extra)+5)
	for k, v := range r.Extra {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}

	set := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = raw
		return nil
	}

	if err := set("access_token", r.AccessToken); err != nil {
		return nil, err
	}
	if err := set("refresh_token", r.RefreshToken); err != nil {
		return nil, err
	}
	if err := set("token_type", r.TokenType); err != nil {
		return nil, err
	}
	if err := set("expires_in", r.ExpiresIn); err != nil {
		return nil, err
	}
	if err := set("expires_at", r.ExpiresAt); err != nil {
		return nil, err
	}

	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON: known fields are lifted out,
// everything else lands in Extra untouched.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	lift := func(key string, dst any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(v, dst)
	}

	if err := lift("access_token", &r.AccessToken); err != nil {
		return err
	}
	if err := lift("refresh_token", &r.RefreshToken); err != nil {
		return err
	}
	if err := lift("token_type", &r.TokenType); err != nil {
		return err
	}
	if err := lift("expires_in", &r.ExpiresIn); err != nil {
		return err
	}
	if err := lift("expires_at", &r.ExpiresAt); err != nil {
		return err
	}

	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// Codec encodes credential records to and from a named HTTP cookie.
// It is a pure transform: no network calls, no server-side state.
type Codec struct {
	Name   string        // cookie name, one per provider
	Secure bool          // false only for local development over plain HTTP
	MaxAge time.Duration // long horizon so the cookie outlives token refreshes
}

// Encode serializes the record into a Set-Cookie ready http.Cookie.
// The value is JSON, URL-encoded, with HttpOnly and Path=/ always set.
func (c *Codec) Encode(rec *Record) (*http.Cookie, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	return &http.Cookie{
		Name:     c.Name,
		Value:    url.QueryEscape(string(payload)),
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		Expires:  time.Now().Add(c.MaxAge),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Decode reverses Encode. Any failure — empty value, bad URL encoding,
// malformed JSON, missing tokens — is reported as ErrNoCredential so
// callers treat a garbled cookie exactly like a missing one.
func (c *Codec) Decode(value string) (*Record, error) {
	if value == "" {
		return nil, ErrNoCredential
	}

	payload, err := url.QueryUnescape(value)
	if err != nil {
		return nil, ErrNoCredential
	}

	var rec Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, ErrNoCredential
	}

	if rec.AccessToken == "" || rec.RefreshToken == "" {
		return nil, ErrNoCredential
	}

	return &rec, nil
}
