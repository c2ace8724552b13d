package cmd

import (
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only HTTP API",
	Long: `Serve the HTTP API without running the crawl loop. The API reads the
same Redis and Postgres state the crawl processes write, so it can run on a
separate host.

Endpoints:
  GET /search?q=...&offset=...   rate-gated passthrough to the upstream search
  GET /status                    active searches, rate window, crawl totals
  GET /healthz                   dependency health
  GET /metrics                   Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := buildServer(cfg, d, promReg, log)
	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
