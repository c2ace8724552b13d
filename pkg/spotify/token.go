package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultAuthURL is the upstream client-credentials token endpoint.
	DefaultAuthURL = "https://accounts.spotify.com/api/token"

	tokenKey = "spotify:auth:token"

	// refreshEarly is how long before expiry a cached token is considered
	// stale. Matches the cache TTL margin below.
	refreshEarly = 5 * time.Minute
)

// AuthError reports a failure from the token endpoint.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// TokenProvider produces a bearer token valid for at least one request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenConfig configures a CachedTokenSource.
type TokenConfig struct {
	ClientID     string
	ClientSecret string

	// BearerToken, when set, is returned as-is and the token endpoint is
	// never contacted.
	BearerToken string

	// AuthURL defaults to DefaultAuthURL.
	AuthURL string

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

// CachedTokenSource caches the client-credentials token in Redis under a
// well-known key so every process shares one token. Concurrent refreshes
// are tolerated: last writer wins and both tokens are valid.
type CachedTokenSource struct {
	cfg TokenConfig
	rdb redis.UniversalClient
	log *zap.Logger
}

// NewCachedTokenSource creates a token source backed by rdb.
func NewCachedTokenSource(cfg TokenConfig, rdb redis.UniversalClient, log *zap.Logger) *CachedTokenSource {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedTokenSource{cfg: cfg, rdb: rdb, log: log}
}

// Token returns a bearer token, refreshing through the token endpoint when
// the cached one is missing or within refreshEarly of expiry.
func (s *CachedTokenSource) Token(ctx context.Context) (string, error) {
	if s.cfg.BearerToken != "" {
		return s.cfg.BearerToken, nil
	}

	raw, err := s.rdb.Get(ctx, tokenKey).Result()
	if err == nil {
		var tok Token
		if uerr := json.Unmarshal([]byte(raw), &tok); uerr == nil {
			if time.Now().Before(tok.ExpiresAt.Add(-refreshEarly)) {
				return tok.AccessToken, nil
			}
		} else {
			s.log.Warn("Discarding unparseable cached token", zap.Error(uerr))
		}
	} else if err != redis.Nil {
		return "", fmt.Errorf("read cached token: %w", err)
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(tok.ExpiresIn-300) * time.Second
	if ttl > 0 {
		payload, merr := json.Marshal(tok)
		if merr != nil {
			return "", fmt.Errorf("marshal token: %w", merr)
		}
		if serr := s.rdb.Set(ctx, tokenKey, payload, ttl).Err(); serr != nil {
			// The token itself is good; a cache miss next time just costs
			// one extra refresh.
			s.log.Warn("Failed to cache token", zap.Error(serr))
		}
	}

	return tok.AccessToken, nil
}

func (s *CachedTokenSource) fetch(ctx context.Context) (*Token, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	tok.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	s.log.Debug("Fetched new access token",
		zap.Int("expires_in", tok.ExpiresIn))

	return &tok, nil
}
