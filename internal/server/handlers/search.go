package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/pkg/spotify"
)

// SearchResponse is the /search payload.
type SearchResponse struct {
	Artists []spotify.Artist `json:"artists"`
}

// SearchHandler proxies artist searches to the upstream endpoint. Requests
// still flow through the shared window and token cache because the injected
// Endpoint is the same rate-gated client the workers use.
type SearchHandler struct {
	search spotify.Endpoint
	log    *zap.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(search spotify.Endpoint, log *zap.Logger) *SearchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SearchHandler{search: search, log: log}
}

// ServeHTTP handles GET /search?q=...&offset=....
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "query parameter q is required")
		return
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > spotify.MaxOffset {
			WriteError(w, http.StatusBadRequest, "INVALID_ARGUMENT",
				"offset must be an integer in [0, "+strconv.Itoa(spotify.MaxOffset)+"]")
			return
		}
		offset = n
	}

	artists, err := h.search.SearchArtists(r.Context(), q, offset)
	if err != nil {
		h.writeSearchError(w, q, offset, err)
		return
	}

	WriteJSON(w, http.StatusOK, SearchResponse{Artists: artists})
}

func (h *SearchHandler) writeSearchError(w http.ResponseWriter, q string, offset int, err error) {
	h.log.Error("Search passthrough failed",
		zap.String("query", q),
		zap.Int("offset", offset),
		zap.Error(err))

	var ra *spotify.RetryAfterError
	if errors.As(err, &ra) {
		w.Header().Set("Retry-After", strconv.Itoa(int(ra.Delay.Seconds())))
		WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "upstream rate limit exceeded")
		return
	}

	var se *spotify.StatusError
	if errors.As(err, &se) {
		WriteError(w, se.StatusCode, "UPSTREAM_ERROR", "upstream request failed")
		return
	}

	var ae *spotify.AuthError
	if errors.As(err, &ae) {
		WriteError(w, http.StatusBadGateway, "AUTH_FAILURE", "failed to authenticate with upstream")
		return
	}

	WriteError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "upstream request failed")
}
