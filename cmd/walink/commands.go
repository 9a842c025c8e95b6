// Package main provides the CLI entry point for walink.
//
// commands.go contains the cobra command definitions and flag wiring. Each
// command builder creates a command and connects it to its handler.
package main

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "walink",
		Short:         "Messaging instance link service",
		Long:          "walink pairs CRM messaging instances with a remote provider and tracks their connection status.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(buildServeCmd())
	cmd.AddCommand(buildInstancesCmd())

	return cmd
}
