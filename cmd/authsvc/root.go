package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the authsvc CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authsvc",
		Short: "authsvc - authentication service",
		Long: `authsvc authenticates users with passwords, one-time codes and
Google sign-in, and issues signed session tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewHashPasswordCmd())

	return cmd
}
