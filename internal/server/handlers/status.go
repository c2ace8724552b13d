package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/pkg/ratelimit"
	"github.com/soundlattice/artistcrawl/pkg/store"
)

// ActiveLister exposes the registry's live membership.
type ActiveLister interface {
	Members(ctx context.Context) ([]string, error)
}

// WindowReader exposes the shared rate-limit window.
type WindowReader interface {
	Info(ctx context.Context) (ratelimit.Info, error)
	WindowRequests(ctx context.Context) ([]ratelimit.Request, error)
}

// ProgressReader exposes crawl aggregates from the database.
type ProgressReader interface {
	CountArtists(ctx context.Context) (int64, error)
	CountCompletions(ctx context.Context) (int64, error)
	EarliestCompletion(ctx context.Context) (*time.Time, error)
	RecentCompletions(ctx context.Context, limit int) ([]store.SearchProgress, error)
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	ActiveSearches         []string               `json:"active_searches"`
	ActiveSearchCount      int                    `json:"active_search_count"`
	RateLimitStatus        ratelimit.Info         `json:"rate_limit_status"`
	WindowRequests         []ratelimit.Request    `json:"window_requests"`
	TotalArtistsCollected  int64                  `json:"total_artists_collected"`
	TotalSearchesCompleted int64                  `json:"total_searches_completed"`
	EarliestSearchTime     *time.Time             `json:"earliest_search_time"`
	RecentSearches         []store.SearchProgress `json:"recent_searches"`
}

// StatusHandler reports crawl progress and coordination state. It never
// fails: unreachable dependencies degrade to empty lists and zero counts.
type StatusHandler struct {
	active   ActiveLister
	window   WindowReader
	progress ProgressReader
	log      *zap.Logger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(active ActiveLister, window WindowReader, progress ProgressReader, log *zap.Logger) *StatusHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusHandler{active: active, window: window, progress: progress, log: log}
}

// ServeHTTP handles GET /status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{
		ActiveSearches: []string{},
		WindowRequests: []ratelimit.Request{},
		RecentSearches: []store.SearchProgress{},
	}

	if members, err := h.active.Members(ctx); err != nil {
		h.log.Warn("Status: active searches unavailable", zap.Error(err))
	} else if members != nil {
		resp.ActiveSearches = members
	}
	resp.ActiveSearchCount = len(resp.ActiveSearches)

	if info, err := h.window.Info(ctx); err != nil {
		h.log.Warn("Status: rate limit info unavailable", zap.Error(err))
	} else {
		resp.RateLimitStatus = info
	}

	if reqs, err := h.window.WindowRequests(ctx); err != nil {
		h.log.Warn("Status: window requests unavailable", zap.Error(err))
	} else if reqs != nil {
		resp.WindowRequests = reqs
	}

	if n, err := h.progress.CountArtists(ctx); err != nil {
		h.log.Warn("Status: artist count unavailable", zap.Error(err))
	} else {
		resp.TotalArtistsCollected = n
	}

	if n, err := h.progress.CountCompletions(ctx); err != nil {
		h.log.Warn("Status: completion count unavailable", zap.Error(err))
	} else {
		resp.TotalSearchesCompleted = n
	}

	if t, err := h.progress.EarliestCompletion(ctx); err != nil {
		h.log.Warn("Status: earliest completion unavailable", zap.Error(err))
	} else {
		resp.EarliestSearchTime = t
	}

	if recent, err := h.progress.RecentCompletions(ctx, 10); err != nil {
		h.log.Warn("Status: recent completions unavailable", zap.Error(err))
	} else if recent != nil {
		resp.RecentSearches = recent
	}

	WriteJSON(w, http.StatusOK, resp)
}
