package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/menusync"
	"github.com/ashita-ai/menusync/internal/config"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema and exit",
		Long: `Apply pending schema migrations to the configured store.

The store is selected by MENUSYNC_STORE (postgres or sqlite). serve also
migrates on startup; this command is for deploy pipelines that run it once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, logCloser, err := newLogger(cfg.LogLevel, cfg.LogFile, os.Stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logCloser.Close() }()

			kind, err := menusync.Migrate(cmd.Context(), menusync.WithLogger(logger))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", kind)
			return err
		},
	}
}
