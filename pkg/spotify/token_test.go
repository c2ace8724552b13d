package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestToken_StaticBearerOverride(t *testing.T) {
	_, rdb := newTestRedis(t)

	src := NewCachedTokenSource(TokenConfig{
		BearerToken: "static-token",
		AuthURL:     "http://127.0.0.1:1/never-called",
	}, rdb, nil)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static-token", tok)
}

func TestToken_FetchesAndCaches(t *testing.T) {
	mr, rdb := newTestRedis(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "id", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer ts.Close()

	src := NewCachedTokenSource(TokenConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		AuthURL:      ts.URL,
	}, rdb, nil)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
	assert.Equal(t, int32(1), calls.Load())

	// Cached under the shared key with the early-expiry TTL.
	require.True(t, mr.Exists("spotify:auth:token"))
	ttl := mr.TTL("spotify:auth:token")
	assert.Equal(t, time.Duration(3600-300)*time.Second, ttl)

	// Second call is served from the cache.
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestToken_RefreshesNearExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer ts.Close()

	// Seed a cached token expiring within the 5-minute refresh margin.
	stale := Token{
		AccessToken: "stale-token",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		ExpiresAt:   time.Now().Add(2 * time.Minute),
	}
	payload, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), "spotify:auth:token", payload, 0).Err())

	src := NewCachedTokenSource(TokenConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		AuthURL:      ts.URL,
	}, rdb, nil)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", tok)
}

func TestToken_EndpointFailurePropagates(t *testing.T) {
	_, rdb := newTestRedis(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	src := NewCachedTokenSource(TokenConfig{
		ClientID:     "id",
		ClientSecret: "bad",
		AuthURL:      ts.URL,
	}, rdb, nil)

	_, err := src.Token(context.Background())
	require.Error(t, err)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)
}
