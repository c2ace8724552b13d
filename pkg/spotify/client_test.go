package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

func TestSearchArtists_ParsesPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "aaaa", q.Get("q"))
		assert.Equal(t, "artist", q.Get("type"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "100", q.Get("offset"))

		fmt.Fprint(w, `{"artists":{"items":[
			{"id":"1","name":"Alpha","genres":["rock"],"popularity":55},
			{"id":"2","name":"Beta","genres":[],"popularity":10}
		]}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, staticTokens("tok"))
	artists, err := c.SearchArtists(context.Background(), "aaaa", 100)
	require.NoError(t, err)
	require.Len(t, artists, 2)
	assert.Equal(t, "Alpha", artists[0].Name)
	assert.Equal(t, []string{"rock"}, artists[0].Genres)
	assert.Equal(t, 55, artists[0].Popularity)
}

func TestSearchArtists_SkipsMalformedEntries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"artists":{"items":[
			{"id":"1","name":"Alpha","genres":[],"popularity":55},
			{"id":12345,"name":"Broken"},
			{"name":"NoID","genres":[]},
			{"id":"2","name":"Beta","genres":[],"popularity":10}
		]}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, staticTokens("tok"))
	artists, err := c.SearchArtists(context.Background(), "aaaa", 0)
	require.NoError(t, err)
	require.Len(t, artists, 2)
	assert.Equal(t, "1", artists[0].ID)
	assert.Equal(t, "2", artists[1].ID)
}

func TestSearchArtists_RateLimitedWithRetryAfter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, staticTokens("tok"))
	_, err := c.SearchArtists(context.Background(), "aaaa", 0)
	require.Error(t, err)

	var ra *RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, 2*time.Second, ra.Delay)
}

func TestSearchArtists_RateLimitedWithoutHeaderDefaults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, staticTokens("tok"))
	_, err := c.SearchArtists(context.Background(), "aaaa", 0)

	var ra *RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, 30*time.Second, ra.Delay)
}

func TestSearchArtists_UpstreamErrorCarriesStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, staticTokens("tok"))
	_, err := c.SearchArtists(context.Background(), "aaaa", 0)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestSearchArtists_RejectsBadOffset(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", staticTokens("tok"))

	_, err := c.SearchArtists(context.Background(), "aaaa", MaxOffset+1)
	require.Error(t, err)

	_, err = c.SearchArtists(context.Background(), "aaaa", -1)
	require.Error(t, err)
}

func TestSearchArtists_EmptyPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"artists":{"items":[]}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, staticTokens("tok"))
	artists, err := c.SearchArtists(context.Background(), "aaaa", 0)
	require.NoError(t, err)
	assert.Empty(t, artists)
}

func TestRetryAfter_Parsing(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"absent", "", 30 * time.Second},
		{"seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"garbage", "tomorrow", 30 * time.Second},
		{"negative", "-1", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			assert.Equal(t, tt.want, retryAfter(h))
		})
	}
}
