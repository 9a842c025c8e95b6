package main

import (
	"github.com/spf13/cobra"
)

// buildInstancesCmd creates the instances command group.
func buildInstancesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Manage messaging instances",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default walink.yaml)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered instances",
		Long:  "Lists instances known to a running walink server, with their last recorded status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstancesList(cmd.Context(), configPath)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show provider-side instance statuses",
		Long:  "Fetches the live status snapshot directly from the provider, bypassing the local registry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstancesStatus(cmd.Context(), configPath)
		},
	}

	var displayName string
	var phoneNumber string
	var pngPath string
	connectCmd := &cobra.Command{
		Use:   "connect <instance-id>",
		Short: "Pair an instance from the terminal",
		Long: "Starts a connection attempt, prints the scan code as a QR block, and waits " +
			"until the device is paired. Ctrl-C cancels the attempt.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstancesConnect(cmd.Context(), configPath, args[0], displayName, phoneNumber, pngPath)
		},
	}
	connectCmd.Flags().StringVar(&displayName, "name", "", "display name for the instance")
	connectCmd.Flags().StringVar(&phoneNumber, "phone", "", "phone number hint for the provider")
	connectCmd.Flags().StringVar(&pngPath, "png", "", "write the scan code to this PNG file instead of rendering it")

	cancelCmd := &cobra.Command{
		Use:   "cancel <instance-id>",
		Short: "Cancel a pending connection attempt",
		Long:  "Asks a running walink server to abandon the instance's attempt. Succeeds even when nothing is pending.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstancesCancel(cmd.Context(), configPath, args[0])
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(statusCmd)
	cmd.AddCommand(connectCmd)
	cmd.AddCommand(cancelCmd)

	return cmd
}
