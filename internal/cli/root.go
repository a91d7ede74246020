// Package cli builds the retailpos command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"retailpos/m/internal/config"
	"retailpos/m/internal/database"
	"retailpos/m/internal/logger"
	"retailpos/m/internal/migrations"
)

// RootOptions carries what every subcommand shares. It is filled in by the
// root command before any subcommand runs.
type RootOptions struct {
	Config config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the retailpos CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "retailpos",
		Short: "Retail point-of-sale backend",
		Long: `retailpos serves the catalog, checkout, identity and branch APIs of a
retail point of sale. Configuration comes from the environment or a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			opts.Config = cfg
			opts.Logger = logger.New(cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(opts.Logger)
			return nil
		},
	}

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

// openDB connects to the configured database and brings its schema up to
// date. Callers own the returned handle.
func openDB(ctx context.Context, opts *RootOptions) (*sqlx.DB, error) {
	db, err := database.Connect(ctx, opts.Config.DatabaseDriver, opts.Config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func closeDB(db *sqlx.DB, log *slog.Logger) {
	if err := db.Close(); err != nil {
		log.Error("error closing database", slog.String("error", err.Error()))
	}
}
