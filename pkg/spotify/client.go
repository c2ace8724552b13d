// Package spotify implements the upstream search and token endpoints.
//
// The client is transport only: pacing against the shared request window and
// retry scheduling belong to the caller. The one upstream policy it does
// encode is the pagination ceiling (MaxOffset), which is a provider limit.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://api.spotify.com/v1"

	// PageLimit is the largest page size the search endpoint accepts.
	PageLimit = 50

	// MaxOffset is the deepest offset the provider will serve. Requests
	// beyond it are rejected upstream, so pagination must stop there.
	MaxOffset = 950
)

// StatusError reports a non-2xx, non-429 upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// RetryAfterError reports an upstream 429 and carries the server-requested
// delay (Retry-After header, defaulting to 30s when absent or unparseable).
type RetryAfterError struct {
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %s", e.Delay)
}

// Endpoint is the search surface consumed by workers and the HTTP API.
type Endpoint interface {
	SearchArtists(ctx context.Context, query string, offset int) ([]Artist, error)
}

// Client calls the upstream search endpoint with bearer auth.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenProvider
	log     *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpc = c }
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(cl *Client) { cl.log = log }
}

// NewClient creates a search client. baseURL defaults to DefaultBaseURL
// when empty.
func NewClient(baseURL string, tokens TokenProvider, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchArtists fetches one page of artist results for query at offset.
// Individual entries that fail to parse are logged and skipped; the rest of
// the page is returned.
func (c *Client) SearchArtists(ctx context.Context, query string, offset int) ([]Artist, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if offset < 0 || offset > MaxOffset {
		return nil, fmt.Errorf("offset must be in [0, %d], got %d", MaxOffset, offset)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	params := url.Values{
		"q":      {query},
		"type":   {"artist"},
		"limit":  {strconv.Itoa(PageLimit)},
		"offset": {strconv.Itoa(offset)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RetryAfterError{Delay: retryAfter(resp.Header)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	artists := make([]Artist, 0, len(parsed.Artists.Items))
	for _, item := range parsed.Artists.Items {
		var a Artist
		if err := json.Unmarshal(item, &a); err != nil || a.ID == "" {
			c.log.Warn("Skipping unparseable artist entry",
				zap.String("query", query),
				zap.Int("offset", offset),
				zap.Error(err))
			continue
		}
		artists = append(artists, a)
	}

	return artists, nil
}

// retryAfter parses the Retry-After header, defaulting to 30 seconds.
func retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 30 * time.Second
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}
