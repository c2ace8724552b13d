package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soundlattice/artistcrawl/internal/observability"
	"github.com/soundlattice/artistcrawl/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, db, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		observability.CLILogger.Error("Failed to connect", zap.Error(err))
		return err
	}
	defer func() { _ = db.Close() }()

	if err := store.Migrate(ctx, db.DB); err != nil {
		observability.CLILogger.Error("Migration failed", zap.Error(err))
		return err
	}

	observability.CLILogger.Info("Migrations applied")
	return nil
}
