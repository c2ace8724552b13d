package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soundlattice/artistcrawl/internal/config"
	"github.com/soundlattice/artistcrawl/internal/observability"
	"github.com/soundlattice/artistcrawl/internal/server"
	"github.com/soundlattice/artistcrawl/internal/server/handlers"
	"github.com/soundlattice/artistcrawl/pkg/crawler"
	"github.com/soundlattice/artistcrawl/pkg/spotify"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the crawl scheduler and workers",
	Long: `Run the crawl loop: every tick, free worker slots are filled with the
next search prefixes and each prefix is walked to completion through the
shared rate window. Progress is durable; restarting resumes from the last
completed prefix.

Example:
  artistcrawl crawl
  artistcrawl crawl --with-api`,
	RunE: runCrawl,
}

var crawlWithAPI bool

func init() {
	rootCmd.AddCommand(crawlCmd)
	crawlCmd.Flags().BoolVar(&crawlWithAPI, "with-api", false, "Also serve the HTTP API from this process")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := observability.ServerLogger

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		observability.CLILogger.Error("Failed to build dependencies", zap.Error(err))
		return err
	}
	defer d.Close()

	promReg := prometheus.NewRegistry()
	metrics := crawler.NewMetrics(promReg)

	cr := crawler.New(d.store, d.client, d.limiter, d.registry, d.generator,
		crawler.Config{
			MaxWorkers:   cfg.Crawl.MaxWorkers,
			TickInterval: cfg.Crawl.TickInterval,
			MaxRetries:   cfg.Crawl.MaxRetries,
		},
		crawler.WithLogger(log),
		crawler.WithMetrics(metrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cr.Run(gctx)
	})

	if crawlWithAPI {
		srv := buildServer(cfg, d, promReg, log)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	err = g.Wait()
	cr.Wait()
	if ctx.Err() != nil {
		// Clean shutdown on signal.
		return nil
	}
	return err
}

// buildServer assembles the HTTP API around the shared collaborators. The
// search passthrough is gated on the same shared window the workers use.
func buildServer(c *config.Config, d *deps, gatherer prometheus.Gatherer, log *zap.Logger) *server.Server {
	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("redis", handlers.CheckFunc(func(ctx context.Context) error {
		return d.rdb.Ping(ctx).Err()
	}))
	health.RegisterChecker("database", handlers.CheckFunc(d.store.Ping))

	return server.New(c.Server.Host, c.Server.Port, server.Deps{
		Search:   spotify.NewGatedEndpoint(d.client, d.limiter),
		Active:   d.registry,
		Window:   d.limiter,
		Progress: d.store,
		Health:   health,
		Gatherer: gatherer,
		Logger:   log,
	}, server.WithTimeouts(
		c.Server.ReadTimeout,
		c.Server.WriteTimeout,
		c.Server.IdleTimeout,
		c.Server.ShutdownTimeout,
	))
}
