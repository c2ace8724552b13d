package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/internal/config"
	"github.com/soundlattice/artistcrawl/pkg/cursor"
	"github.com/soundlattice/artistcrawl/pkg/ratelimit"
	"github.com/soundlattice/artistcrawl/pkg/registry"
	"github.com/soundlattice/artistcrawl/pkg/spotify"
	"github.com/soundlattice/artistcrawl/pkg/store"
)

// deps bundles the shared collaborators built from configuration.
type deps struct {
	rdb       *redis.Client
	store     *store.Store
	db        *sqlx.DB
	limiter   *ratelimit.Limiter
	registry  *registry.Registry
	tokens    *spotify.CachedTokenSource
	client    *spotify.Client
	generator *cursor.Generator
}

func buildDeps(ctx context.Context, cfg *config.Config, log *zap.Logger) (*deps, error) {
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	st, db, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db.DB); err != nil {
		return nil, err
	}

	limiter := ratelimit.New(rdb, cfg.Crawl.RateLimitWindow, cfg.Crawl.RateLimitMax,
		ratelimit.WithLogger(log))
	reg := registry.New(rdb, cfg.Crawl.MaxWorkers, cfg.Crawl.SearchTimeout,
		registry.WithLogger(log))

	tokens := spotify.NewCachedTokenSource(spotify.TokenConfig{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		BearerToken:  cfg.Spotify.BearerToken,
		AuthURL:      cfg.Spotify.AuthURL,
	}, rdb, log)

	client := spotify.NewClient(cfg.Spotify.BaseURL, tokens, spotify.WithLogger(log))

	return &deps{
		rdb:       rdb,
		store:     st,
		db:        db,
		limiter:   limiter,
		registry:  reg,
		tokens:    tokens,
		client:    client,
		generator: cursor.NewGenerator(st),
	}, nil
}

func (d *deps) Close() {
	if d.db != nil {
		_ = d.db.Close()
	}
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
}
