package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/menusync"
	"github.com/ashita-ai/menusync/internal/config"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(cfg.LogLevel, cfg.LogFile, os.Stdout)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	logger.Info("menusync starting", "version", version, "port", cfg.Port, "store", cfg.Store)

	app, err := menusync.New(ctx,
		menusync.WithLogger(logger),
		menusync.WithVersion(version),
	)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
