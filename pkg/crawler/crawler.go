// Package crawler coordinates the artist catalog crawl.
//
// A periodic scheduler tick measures free capacity in the shared registry,
// draws that many prefixes from the cursor, and dispatches one worker per
// registered prefix. Each worker walks the paginated search endpoint for
// its prefix under the shared request window, persists what it finds, and
// chains one replacement prefix on completion so capacity never idles
// between ticks.
//
// All cross-process invariants live in Redis and Postgres; the crawler
// holds no coordination state of its own beyond the in-memory cursor.
package crawler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/pkg/spotify"
)

// Config configures crawl behavior.
type Config struct {
	// MaxWorkers bounds concurrent prefixes. Shared with the registry cap.
	// Default: 10
	MaxWorkers int

	// TickInterval is the scheduler period.
	// Default: 5s
	TickInterval time.Duration

	// MaxRetries bounds per-prefix retries after upstream 429s.
	// Default: 5
	MaxRetries int

	// RetryBackoffMax caps the jittered backoff between 429 retries.
	// Default: 5m
	RetryBackoffMax time.Duration

	// AdmitEpsilon pads the sleep after a denied admission so the worker
	// does not wake exactly on the window boundary.
	// Default: 10ms
	AdmitEpsilon time.Duration
}

// DefaultConfig returns the default crawl configuration.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:      10,
		TickInterval:    5 * time.Second,
		MaxRetries:      5,
		RetryBackoffMax: 5 * time.Minute,
		AdmitEpsilon:    10 * time.Millisecond,
	}
}

// Store is the durable side of the crawl.
type Store interface {
	CompletionExists(ctx context.Context, query string) (bool, error)
	UpsertArtists(ctx context.Context, artists []spotify.Artist) error
	RecordCompletion(ctx context.Context, query string, artistsFound int) error
}

// Limiter gates upstream requests against the shared window.
type Limiter interface {
	TryAdmit(ctx context.Context, query string, offset, limit int) (bool, error)
	NextSlotETA(ctx context.Context) (time.Duration, error)
	UpdateFound(ctx context.Context, query string, offset, found int) error
}

// Registry is the bounded set of in-flight prefixes.
type Registry interface {
	TryRegister(ctx context.Context, prefix string) (bool, error)
	Unregister(ctx context.Context, prefix string) error
	Count(ctx context.Context) (int, error)
}

// Batcher supplies the next prefixes to crawl.
type Batcher interface {
	Batch(ctx context.Context, n int) ([]string, error)
}

// Crawler drives the scheduler tick and the per-prefix workers.
type Crawler struct {
	store    Store
	endpoint spotify.Endpoint
	limiter  Limiter
	registry Registry
	batcher  Batcher

	cfg     Config
	log     *zap.Logger
	metrics *Metrics

	// sleep is swapped out in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithLogger sets the crawler logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Crawler) { c.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// WithSleep overrides the sleep function. Test hook.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Crawler) { c.sleep = fn }
}

// New creates a crawler. Zero-valued Config fields take their defaults.
func New(store Store, endpoint spotify.Endpoint, limiter Limiter, registry Registry, batcher Batcher, cfg Config, opts ...Option) *Crawler {
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBackoffMax <= 0 {
		cfg.RetryBackoffMax = def.RetryBackoffMax
	}
	if cfg.AdmitEpsilon <= 0 {
		cfg.AdmitEpsilon = def.AdmitEpsilon
	}

	c := &Crawler{
		store:    store,
		endpoint: endpoint,
		limiter:  limiter,
		registry: registry,
		batcher:  batcher,
		cfg:      cfg,
		log:      zap.NewNop(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Run ticks the scheduler until ctx is canceled, then waits for in-flight
// workers to wind down.
func (c *Crawler) Run(ctx context.Context) error {
	c.log.Info("Starting crawl",
		zap.Int("max_workers", c.cfg.MaxWorkers),
		zap.Duration("tick_interval", c.cfg.TickInterval))

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Crawl stopping, waiting for workers")
			c.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass: measure free capacity, draw a batch, and
// dispatch a worker per registered prefix. Ticks are idempotent and may
// overlap; a duplicate registration simply fails.
func (c *Crawler) Tick(ctx context.Context) {
	count, err := c.registry.Count(ctx)
	if err != nil {
		c.log.Error("Tick failed to read registry", zap.Error(err))
		return
	}
	free := c.cfg.MaxWorkers - count
	if free <= 0 {
		return
	}

	batch, err := c.batcher.Batch(ctx, free)
	if err != nil {
		c.log.Error("Tick failed to generate batch", zap.Error(err))
		return
	}

	for _, prefix := range batch {
		ok, err := c.registry.TryRegister(ctx, prefix)
		if err != nil {
			c.log.Error("Tick failed to register prefix",
				zap.String("prefix", prefix),
				zap.Error(err))
			continue
		}
		if !ok {
			// Full or duplicate; the next tick reconsiders.
			continue
		}
		c.dispatch(ctx, prefix)
	}
}

// Wait blocks until all dispatched workers have returned.
func (c *Crawler) Wait() {
	c.wg.Wait()
}

func (c *Crawler) dispatch(ctx context.Context, prefix string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runWorker(ctx, prefix)
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter adds up to 25% on top of d so retrying workers do not stampede.
// Never shortens d: a server-requested delay is a floor, not a hint.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
