// Package authflow decides, per request, whether a provider credential is
// usable as-is, silently refreshable, or gone. It owns the single
// correctness-critical race of the system: concurrent requests bearing the
// same expired cookie must collapse into one provider refresh call, because
// refresh-token rotation invalidates the old token the moment the first
// refresh lands.
package authflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/go-vitals/vitals/internal/credential"
	"github.com/go-vitals/vitals/internal/metrics"
	"github.com/go-vitals/vitals/internal/provider"
)

// ErrReauthRequired indicates the refresh token was rejected and the user
// must go through the authorization flow again.
var ErrReauthRequired = errors.New("authflow: reauthentication required")

// Outcome is the result of checking one inbound request's credential.
type Outcome struct {
	// Authed reports whether a valid access token is available.
	Authed bool

	// Record is the usable credential. When Refreshed is true it is a new
	// record and the caller must re-encode it into a Set-Cookie.
	Record *credential.Record

	// Refreshed is true when a silent refresh produced Record.
	Refreshed bool
}

// Orchestrator runs the per-request credential state machine for one
// provider. It holds no credential state itself; the cookie is the session.
type Orchestrator struct {
	client  provider.TokenClient
	codec   *credential.Codec
	metrics metrics.Recorder
	group   singleflight.Group
	now     func() time.Time
}

// New creates an orchestrator for one provider.
func New(client provider.TokenClient, codec *credential.Codec, m metrics.Recorder) *Orchestrator {
	return &Orchestrator{
		client:  client,
		codec:   codec,
		metrics: m,
		now:     time.Now,
	}
}

// Codec exposes the provider's cookie codec for handlers that need to
// re-encode a refreshed record.
func (o *Orchestrator) Codec() *credential.Codec { return o.codec }

// Client exposes the provider token client for resource fetches.
func (o *Orchestrator) Client() provider.TokenClient { return o.client }

// Check runs the decision procedure against a raw cookie value:
//
//	absent/garbled  -> {Authed:false}, no network call
//	fresh           -> {Authed:true}, refresh must not be called
//	expired         -> one refresh per refresh-token identity; success
//	                   yields a new record, failure yields ErrReauthRequired
func (o *Orchestrator) Check(ctx context.Context, rawCookie string) (*Outcome, error) {
	rec, err := o.codec.Decode(rawCookie)
	if err != nil {
		return &Outcome{Authed: false}, err
	}

	if rec.Fresh(o.now()) {
		return &Outcome{Authed: true, Record: rec}, nil
	}

	refreshed, err := o.refresh(ctx, rec.RefreshToken)
	if err != nil {
		log.Printf("[Auth] %s refresh failed: %v", o.client.Name(), err)
		return &Outcome{Authed: false}, fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}

	return &Outcome{Authed: true, Record: refreshed, Refreshed: true}, nil
}

// refresh performs the provider refresh call, deduplicated so that at most
// one call is in flight per refresh-token identity. singleflight drops the
// key on settlement, so later expirations trigger a fresh call.
func (o *Orchestrator) refresh(
	ctx context.Context,
	refreshToken string,
) (*credential.Record, error) {
	key := refreshKey(refreshToken)

	result, err, shared := o.group.Do(key, func() (any, error) {
		rec, err := o.client.Refresh(ctx, refreshToken)
		o.metrics.RecordTokenRefresh(o.client.Name(), err == nil)
		if err != nil {
			return nil, err
		}
		return rec, nil
	})
	if shared {
		o.metrics.RecordRefreshDeduped(o.client.Name())
	}
	if err != nil {
		return nil, err
	}

	return result.(*credential.Record), nil
}

// refreshKey derives a stable dedup key from the refresh token without
// keeping the token itself in the map.
func refreshKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}
