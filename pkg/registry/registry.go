// Package registry tracks the bounded set of searches currently owned by a
// worker, shared across processes through Redis.
//
// Two coordinated structures back it: a set for membership and cardinality,
// and a hash mapping each prefix to its start timestamp for staleness.
// Mutations touch both inside one atomic operation so the structures never
// drift.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	activeKey     = "active_searches"
	timestampsKey = "active_searches:timestamps"

	// DefaultMaxWorkers is capped by the upstream request budget.
	DefaultMaxWorkers = 10

	// DefaultTimeout is the stale-eviction threshold. It reclaims slots
	// from crashed workers; it does not cancel live work, so it should
	// exceed the worst-case time to walk one prefix.
	DefaultTimeout = 5 * time.Minute
)

// registerScript admits a prefix only when it is not already present and
// the set is under capacity. Returns 1 on success, 0 otherwise.
var registerScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
    return 0
end
if redis.call('SCARD', KEYS[1]) >= tonumber(ARGV[2]) then
    return 0
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// Registry is the bounded admission set.
type Registry struct {
	rdb        redis.UniversalClient
	maxWorkers int
	timeout    time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates a registry over rdb. Non-positive maxWorkers or timeout fall
// back to the defaults.
func New(rdb redis.UniversalClient, maxWorkers int, timeout time.Duration, opts ...Option) *Registry {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Registry{
		rdb:        rdb,
		maxWorkers: maxWorkers,
		timeout:    timeout,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxWorkers returns the admission cap.
func (r *Registry) MaxWorkers() int { return r.maxWorkers }

// TryRegister claims a slot for prefix. False means the set is full or the
// prefix is already owned.
func (r *Registry) TryRegister(ctx context.Context, prefix string) (bool, error) {
	ts := strconv.FormatFloat(float64(r.now().UnixNano())/1e9, 'f', 6, 64)
	res, err := registerScript.Run(ctx, r.rdb,
		[]string{activeKey, timestampsKey},
		prefix, r.maxWorkers, ts,
	).Int()
	if err != nil {
		return false, fmt.Errorf("run register script: %w", err)
	}
	if res == 1 {
		r.log.Info("Registered active search", zap.String("prefix", prefix))
		return true, nil
	}
	return false, nil
}

// Unregister releases the slot for prefix. Idempotent.
func (r *Registry) Unregister(ctx context.Context, prefix string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, activeKey, prefix)
		pipe.HDel(ctx, timestampsKey, prefix)
		return nil
	})
	if err != nil {
		return fmt.Errorf("unregister %q: %w", prefix, err)
	}
	r.log.Info("Removed active search", zap.String("prefix", prefix))
	return nil
}

// Members evicts stale entries and returns the current set.
func (r *Registry) Members(ctx context.Context) ([]string, error) {
	if err := r.evictStale(ctx); err != nil {
		return nil, err
	}
	members, err := r.rdb.SMembers(ctx, activeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read active set: %w", err)
	}
	return members, nil
}

// Count evicts stale entries and returns the current cardinality.
func (r *Registry) Count(ctx context.Context) (int, error) {
	if err := r.evictStale(ctx); err != nil {
		return 0, err
	}
	n, err := r.rdb.SCard(ctx, activeKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count active set: %w", err)
	}
	return int(n), nil
}

// evictStale removes prefixes whose start timestamp is older than the
// timeout. Their workers are presumed crashed; a worker that is merely slow
// will still complete, and the completion record absorbs the duplicate.
func (r *Registry) evictStale(ctx context.Context) error {
	members, err := r.rdb.SMembers(ctx, activeKey).Result()
	if err != nil {
		return fmt.Errorf("read active set: %w", err)
	}
	if len(members) == 0 {
		return nil
	}

	timestamps, err := r.rdb.HGetAll(ctx, timestampsKey).Result()
	if err != nil {
		return fmt.Errorf("read timestamps: %w", err)
	}

	cutoff := float64(r.now().UnixNano())/1e9 - r.timeout.Seconds()
	for _, prefix := range members {
		raw, ok := timestamps[prefix]
		if !ok {
			// Registration writes both keys atomically, so a member without
			// a timestamp means one key was mutated externally. Reclaim it.
			r.log.Warn("Evicting entry with no timestamp", zap.String("prefix", prefix))
			if uerr := r.Unregister(ctx, prefix); uerr != nil {
				return uerr
			}
			continue
		}
		started, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			r.log.Warn("Evicting entry with bad timestamp",
				zap.String("prefix", prefix),
				zap.String("timestamp", raw))
			started = 0
		}
		if started < cutoff {
			r.log.Info("Evicting stale search", zap.String("prefix", prefix))
			if uerr := r.Unregister(ctx, prefix); uerr != nil {
				return uerr
			}
		}
	}
	return nil
}
