package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heartlink/onboardgate/internal/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gate and reverse proxy",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadRuntimeConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		return rt.Run(ctx)
	},
}
