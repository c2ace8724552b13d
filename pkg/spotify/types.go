package spotify

import (
	"encoding/json"
	"time"
)

// Artist is one artist entry as returned by the upstream search endpoint.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
}

// Token is the client-credentials grant response, plus the absolute expiry
// computed at receive time so cached copies can be validated without
// knowing when they were fetched.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// searchResponse mirrors the upstream /search payload. Items are kept raw so
// a single malformed entry can be skipped without discarding the page.
type searchResponse struct {
	Artists struct {
		Items []json.RawMessage `json:"items"`
	} `json:"artists"`
}
