package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-vitals/vitals/internal/credential"
	"github.com/go-vitals/vitals/internal/metrics"
	"github.com/go-vitals/vitals/internal/provider"
)

// fakeClient implements provider.TokenClient with canned responses and
// call counting.
type fakeClient struct {
	refreshRec   *credential.Record
	refreshErr   error
	refreshDelay time.Duration

	refreshCalls atomic.Int64
}

var _ provider.TokenClient = (*fakeClient)(nil)

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) AuthCodeURL(state string) string {
	return "https://example.com/authorize?state=" + state
}

func (f *fakeClient) Exchange(ctx context.Context, code string) (*credential.Record, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) Refresh(ctx context.Context, refreshToken string) (*credential.Record, error) {
	f.refreshCalls.Add(1)
	if f.refreshDelay > 0 {
		time.Sleep(f.refreshDelay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	rec := *f.refreshRec
	return &rec, nil
}

func (f *fakeClient) Fetch(
	ctx context.Context,
	accessToken, path string,
	query url.Values,
) ([]byte, error) {
	return nil, errors.New("not used")
}

func testCodec() *credential.Codec {
	return &credential.Codec{Name: "fake_token", Secure: true, MaxAge: time.Hour}
}

func encodeRecord(t *testing.T, rec *credential.Record) string {
	t.Helper()
	ck, err := testCodec().Encode(rec)
	require.NoError(t, err)
	return ck.Value
}

func freshRecord() *credential.Record {
	return &credential.Record{
		AccessToken:  "fresh-at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(1 * time.Hour).Unix(),
	}
}

func expiredRecord() *credential.Record {
	return &credential.Record{
		AccessToken:  "stale-at",
		RefreshToken: "rt",
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(-100 * time.Second).Unix(),
	}
}

func refreshedRecord() *credential.Record {
	return &credential.Record{
		AccessToken:  "newAT",
		RefreshToken: "newRT",
		TokenType:    "Bearer",
		ExpiresIn:    86400,
		ExpiresAt:    time.Now().Add(24 * time.Hour).Unix(),
	}
}

func TestCheck_AbsentCookie_NoNetworkCalls(t *testing.T) {
	client := &fakeClient{}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	out, err := o.Check(context.Background(), "")

	assert.False(t, out.Authed)
	assert.ErrorIs(t, err, credential.ErrNoCredential)
	assert.Equal(t, int64(0), client.refreshCalls.Load())
}

func TestCheck_GarbledCookie_TreatedAsAbsent(t *testing.T) {
	client := &fakeClient{}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	out, err := o.Check(context.Background(), "%%%not-a-cookie%%%")

	assert.False(t, out.Authed)
	assert.ErrorIs(t, err, credential.ErrNoCredential)
	assert.Equal(t, int64(0), client.refreshCalls.Load())
}

func TestCheck_FreshToken_NoRefresh(t *testing.T) {
	client := &fakeClient{refreshRec: refreshedRecord()}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	out, err := o.Check(context.Background(), encodeRecord(t, freshRecord()))

	require.NoError(t, err)
	assert.True(t, out.Authed)
	assert.False(t, out.Refreshed)
	assert.Equal(t, "fresh-at", out.Record.AccessToken)
	// Refreshing a still-valid token would burn provider quota.
	assert.Equal(t, int64(0), client.refreshCalls.Load())
}

func TestCheck_ExpiredToken_RefreshesOnce(t *testing.T) {
	client := &fakeClient{refreshRec: refreshedRecord()}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	out, err := o.Check(context.Background(), encodeRecord(t, expiredRecord()))

	require.NoError(t, err)
	assert.True(t, out.Authed)
	assert.True(t, out.Refreshed)
	assert.Equal(t, "newAT", out.Record.AccessToken)
	assert.Equal(t, "newRT", out.Record.RefreshToken)
	assert.True(t, out.Record.Fresh(time.Now()))
	assert.Equal(t, int64(1), client.refreshCalls.Load())
}

func TestCheck_RefreshFailure_ReauthRequired(t *testing.T) {
	client := &fakeClient{refreshErr: fmt.Errorf("%w: HTTP 400", provider.ErrTokenRefresh)}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	out, err := o.Check(context.Background(), encodeRecord(t, expiredRecord()))

	assert.False(t, out.Authed)
	assert.ErrorIs(t, err, ErrReauthRequired)
}

func TestCheck_RefreshErrorNeverLeaksSecrets(t *testing.T) {
	// The wrapped error may mention the provider failure but must not
	// contain the refresh token itself.
	client := &fakeClient{refreshErr: errors.New("HTTP 400")}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	rec := expiredRecord()
	rec.RefreshToken = "super-secret-rt"

	_, err := o.Check(context.Background(), encodeRecord(t, rec))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-rt")
}

func TestCheck_ConcurrentExpired_SingleRefresh(t *testing.T) {
	const concurrency = 8

	client := &fakeClient{
		refreshRec:   refreshedRecord(),
		refreshDelay: 50 * time.Millisecond, // force overlap
	}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	rawCookie := encodeRecord(t, expiredRecord())

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, concurrency)
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = o.Check(context.Background(), rawCookie)
		}(i)
	}
	wg.Wait()

	// Refresh-token rotation means only one provider call may happen;
	// every caller still observes a consistent, valid token.
	assert.Equal(t, int64(1), client.refreshCalls.Load())
	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		assert.True(t, outcomes[i].Authed)
		assert.Equal(t, "newAT", outcomes[i].Record.AccessToken)
	}
}

func TestCheck_SequentialExpirations_RefreshEachTime(t *testing.T) {
	// The dedup map must not pin a settled refresh: a later expiry with a
	// different refresh token triggers its own provider call.
	client := &fakeClient{refreshRec: refreshedRecord()}
	o := New(client, testCodec(), metrics.NewNoopMetrics())

	first := expiredRecord()
	_, err := o.Check(context.Background(), encodeRecord(t, first))
	require.NoError(t, err)

	second := expiredRecord()
	second.RefreshToken = "another-rt"
	_, err = o.Check(context.Background(), encodeRecord(t, second))
	require.NoError(t, err)

	assert.Equal(t, int64(2), client.refreshCalls.Load())
}

func TestCheck_RoundTripLaw(t *testing.T) {
	// A refreshed record re-encoded through the codec decodes to a record
	// whose expiry is in the future.
	client := &fakeClient{refreshRec: refreshedRecord()}
	codec := testCodec()
	o := New(client, codec, metrics.NewNoopMetrics())

	out, err := o.Check(context.Background(), encodeRecord(t, expiredRecord()))
	require.NoError(t, err)
	require.True(t, out.Refreshed)

	ck, err := codec.Encode(out.Record)
	require.NoError(t, err)

	decoded, err := codec.Decode(ck.Value)
	require.NoError(t, err)
	assert.True(t, decoded.Fresh(time.Now()))
	assert.Equal(t, "newAT", decoded.AccessToken)
}

func TestRefreshKey_Stable(t *testing.T) {
	assert.Equal(t, refreshKey("rt"), refreshKey("rt"))
	assert.NotEqual(t, refreshKey("rt"), refreshKey("rt2"))

	// The key must not expose the token.
	assert.NotContains(t, refreshKey("topsecret"), "topsecret")
}

func TestOutcome_RecordExtrasSurvive(t *testing.T) {
	client := &fakeClient{}
	codec := testCodec()
	o := New(client, codec, metrics.NewNoopMetrics())

	rec := freshRecord()
	rec.Extra = map[string]json.RawMessage{"athlete": json.RawMessage(`{"id":1}`)}

	out, err := o.Check(context.Background(), encodeRecord(t, rec))
	require.NoError(t, err)
	require.Contains(t, out.Record.Extra, "athlete")
}
