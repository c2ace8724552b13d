// Package ratelimit implements a sliding-window request budget shared across
// all worker processes through Redis.
//
// The window is a sorted set of request tags scored by UNIX timestamp. The
// check-evict-count-insert sequence runs as one server-side Lua script so
// that admission is atomic across processes; client-side locking would not
// hold between hosts.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	requestsKey      = "api_requests"
	requestKeyPrefix = "request:"

	// DefaultWindow and DefaultMax match the upstream budget of 10
	// requests per 30 seconds.
	DefaultWindow = 30 * time.Second
	DefaultMax    = 10
)

// admitScript evicts expired entries, counts the live window, and inserts
// the new request only when under the cap. Returns 1 on admission, 0 on
// denial. Metadata lives in a companion hash keyed by the request tag.
var admitScript = redis.NewScript(`
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, window_start)

local count = redis.call('ZCOUNT', KEYS[1], window_start, '+inf')
if count >= max_requests then
    return 0
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('HSET', 'request:' .. ARGV[4],
    'query', ARGV[5],
    'offset', ARGV[6],
    'limit', ARGV[7],
    'timestamp', tostring(now),
    'artists_found', '0'
)
redis.call('EXPIRE', KEYS[1], 60)
redis.call('EXPIRE', 'request:' .. ARGV[4], 60)

return 1
`)

// Info is a snapshot of the current window for the status API.
type Info struct {
	WindowSize           float64 `json:"window_size"`
	CurrentRequests      int     `json:"current_requests"`
	MaxRequests          int     `json:"max_requests"`
	RemainingRequests    int     `json:"remaining_requests"`
	TimeUntilNextRequest float64 `json:"time_until_next_request"`
	WindowStart          float64 `json:"window_start"`
	WindowEnd            float64 `json:"window_end"`
}

// Request is one recorded admission with its metadata.
type Request struct {
	Query        string  `json:"query"`
	Offset       int     `json:"offset"`
	Limit        int     `json:"limit"`
	Timestamp    float64 `json:"timestamp"`
	ArtistsFound int     `json:"artists_found"`
}

// Limiter admits requests against the shared window.
type Limiter struct {
	rdb    redis.UniversalClient
	window time.Duration
	max    int
	now    func() time.Time
	log    *zap.Logger
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the limiter logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a limiter over rdb. Non-positive window or max fall back to
// the defaults.
func New(rdb redis.UniversalClient, window time.Duration, max int, opts ...Option) *Limiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	l := &Limiter{
		rdb:    rdb,
		window: window,
		max:    max,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Window returns the configured window width.
func (l *Limiter) Window() time.Duration { return l.window }

// Max returns the configured request cap.
func (l *Limiter) Max() int { return l.max }

// TryAdmit atomically records one request for (query, offset) if the window
// has room. A false return with nil error means the budget is exhausted;
// the caller must not issue the request. Any Redis error also forbids the
// request.
func (l *Limiter) TryAdmit(ctx context.Context, query string, offset, limit int) (bool, error) {
	now := unixSeconds(l.now())
	windowStart := now - l.window.Seconds()
	tag := fmt.Sprintf("%s:%d:%s", query, offset, formatSeconds(now))

	res, err := admitScript.Run(ctx, l.rdb,
		[]string{requestsKey},
		formatSeconds(windowStart),
		formatSeconds(now),
		l.max,
		tag,
		query,
		strconv.Itoa(offset),
		strconv.Itoa(limit),
	).Int()
	if err != nil {
		return false, fmt.Errorf("run admit script: %w", err)
	}
	return res == 1, nil
}

// NextSlotETA returns how long until the window frees a slot. Zero when a
// request could be admitted right now.
func (l *Limiter) NextSlotETA(ctx context.Context) (time.Duration, error) {
	info, err := l.Info(ctx)
	if err != nil {
		return 0, err
	}
	return time.Duration(info.TimeUntilNextRequest * float64(time.Second)), nil
}

// Info evicts expired entries and reports the live window.
func (l *Limiter) Info(ctx context.Context) (Info, error) {
	now := unixSeconds(l.now())
	windowStart := now - l.window.Seconds()

	info := Info{
		WindowSize:        l.window.Seconds(),
		MaxRequests:       l.max,
		RemainingRequests: l.max,
		WindowStart:       windowStart,
		WindowEnd:         now,
	}

	// Snapshot before evicting: entries that expired since the last poll
	// still count toward the at-cap check, so the reported wait runs until
	// the oldest surviving entry leaves the window rather than snapping to
	// zero the instant one expires.
	var rangeCmd *redis.ZSliceCmd
	_, err := l.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.ZRangeWithScores(ctx, requestsKey, 0, -1)
		pipe.ZRemRangeByScore(ctx, requestsKey, "0", formatSeconds(windowStart))
		return nil
	})
	if err != nil {
		return info, fmt.Errorf("read window: %w", err)
	}
	all := rangeCmd.Val()

	live := all[:0:0]
	for _, e := range all {
		if e.Score > windowStart {
			live = append(live, e)
		}
	}

	info.CurrentRequests = len(live)
	info.RemainingRequests = max(0, l.max-len(live))

	if len(all) >= l.max && len(live) > 0 {
		oldest := live[0].Score
		info.TimeUntilNextRequest = max(0, oldest+l.window.Seconds()-now)
	}

	return info, nil
}

// UpdateFound sets artists_found on the window entry recorded for
// (query, offset). Best-effort: it races with eviction and duplicate
// admissions, and only the status API reads the field.
func (l *Limiter) UpdateFound(ctx context.Context, query string, offset, found int) error {
	now := unixSeconds(l.now())
	windowStart := now - l.window.Seconds()

	tags, err := l.rdb.ZRangeByScore(ctx, requestsKey, &redis.ZRangeBy{
		Min: formatSeconds(windowStart),
		Max: "+inf",
	}).Result()
	if err != nil {
		return fmt.Errorf("scan window: %w", err)
	}

	want := fmt.Sprintf("%s:%d:", query, offset)
	for _, tag := range tags {
		if strings.HasPrefix(tag, want) {
			if err := l.rdb.HSet(ctx, requestKeyPrefix+tag, "artists_found", found).Err(); err != nil {
				return fmt.Errorf("update request entry: %w", err)
			}
			return nil
		}
	}
	return nil
}

// WindowRequests returns the live window entries, newest first.
func (l *Limiter) WindowRequests(ctx context.Context) ([]Request, error) {
	now := unixSeconds(l.now())
	windowStart := now - l.window.Seconds()

	tags, err := l.rdb.ZRangeByScore(ctx, requestsKey, &redis.ZRangeBy{
		Min: formatSeconds(windowStart),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan window: %w", err)
	}

	out := make([]Request, 0, len(tags))
	for _, tag := range tags {
		fields, err := l.rdb.HGetAll(ctx, requestKeyPrefix+tag).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		req, perr := parseRequest(fields)
		if perr != nil {
			l.log.Warn("Skipping malformed request entry",
				zap.String("tag", tag),
				zap.Error(perr))
			continue
		}
		out = append(out, req)
	}

	// Newest first for the status view.
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })

	return out, nil
}

func parseRequest(fields map[string]string) (Request, error) {
	var req Request
	req.Query = fields["query"]

	offset, err := strconv.Atoi(fields["offset"])
	if err != nil {
		return req, fmt.Errorf("parse offset: %w", err)
	}
	req.Offset = offset

	limit, err := strconv.Atoi(fields["limit"])
	if err != nil {
		return req, fmt.Errorf("parse limit: %w", err)
	}
	req.Limit = limit

	ts, err := strconv.ParseFloat(fields["timestamp"], 64)
	if err != nil {
		return req, fmt.Errorf("parse timestamp: %w", err)
	}
	req.Timestamp = ts

	found, err := strconv.Atoi(fields["artists_found"])
	if err != nil {
		return req, fmt.Errorf("parse artists_found: %w", err)
	}
	req.ArtistsFound = found

	return req, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 6, 64)
}
