package main

import (
	"context"
	"errors"
	"fmt"

	"novel-client/internal/config"
	"novel-client/internal/database"
	"novel-client/pkg/migration"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errHistoryNotConfigured = errors.New("HISTORY_DATABASE_URL is not set")

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the generation history database",
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect history schema migrations",
	}
	migrate.AddCommand(
		newMigrateCommand(opts, "up", "Apply all pending migrations", func(cmd *cobra.Command, m *migration.Migrator) error {
			return m.Up()
		}),
		newMigrateCommand(opts, "down", "Roll back all migrations and drop the history table", func(cmd *cobra.Command, m *migration.Migrator) error {
			return m.Down()
		}),
		newMigrateCommand(opts, "version", "Print the current schema version", func(cmd *cobra.Command, m *migration.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		}),
	)
	cmd.AddCommand(migrate)
	return cmd
}

func newMigrateCommand(opts *rootOptions, use, short string, fn func(*cobra.Command, *migration.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistoryMigrator(cmd.Context(), opts.cfg, opts.logger, func(m *migration.Migrator) error {
				return fn(cmd, m)
			})
		},
	}
}

func withHistoryMigrator(ctx context.Context, cfg *config.Config, log *zap.Logger, fn func(*migration.Migrator) error) error {
	if cfg.HistoryDatabaseURL == "" {
		return errHistoryNotConfigured
	}
	log.Info("Connecting to history database", zap.String("url", cfg.MaskedHistoryURL()))
	pool, err := database.Connect(ctx, cfg.HistoryDatabaseURL, log)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(newHistoryMigrator(cfg, pool))
}
