package main

import (
	"fmt"

	"novel-client/internal/config"
	"novel-client/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions - общие для всех команд настройки, заполняются в PersistentPreRunE.
type rootOptions struct {
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand создает корневую команду storysync.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "storysync",
		Short: "storysync - offline story cache and generation tracker",
		Long: `storysync keeps a local copy of a user's generated stories in sync with the
remote story service and tracks story generation requests until they finish.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			log, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.cfg = cfg
			opts.logger = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newStoriesCommand(opts))
	cmd.AddCommand(newCacheCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	return cmd
}
