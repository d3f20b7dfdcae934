package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/you/authsvc/internal/app"
	"github.com/you/authsvc/internal/config"
	"github.com/you/authsvc/internal/logging"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Service.Version == "dev" {
		cfg.Service.Version = version
	}

	logger := logging.Setup(cfg.Service.Name, cfg.Service.Version, cfg.Log.Format, cfg.Log.Level, os.Stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, logger); err != nil {
		logging.LogError(ctx, logger, "server exited", err)
		return err
	}
	return nil
}
