package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the serve command that runs the walink server.
func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the walink server",
		Long:  "Starts the HTTP API, websocket event stream, status reconciler, and connection coordinator.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default walink.yaml)")
	cmd.Flags().BoolVar(&debug, "debug", false, "force debug logging")

	return cmd
}
