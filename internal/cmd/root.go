// Package cmd implements the artistcrawl command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundlattice/artistcrawl/internal/config"
	"github.com/soundlattice/artistcrawl/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// cfg is loaded once by the root PersistentPreRunE and shared by
// subcommands.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "artistcrawl",
	Short: "Enumerate the Spotify artist catalog by prefix search",
	Long: `artistcrawl walks the artist catalog by issuing search queries over a
lexicographic alphabet of short prefixes, pacing requests against a shared
rate window and persisting discovered artists to Postgres.

Coordination state (rate window, active searches, token cache) lives in
Redis so any number of crawl processes can cooperate.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := observability.Init(cfg.Logging.Level); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
