// Package main provides the CLI entry point for walink, the messaging
// instance link service.
//
// walink pairs CRM messaging instances with a remote WhatsApp-style provider.
// Pairing is authorized out-of-band: the provider issues a scan code, the user
// scans it on their device, and walink watches two redundant channels (a push
// event socket and a status poll) for the terminal connected status.
//
// # Basic Usage
//
// Start the server:
//
//	walink serve --config walink.yaml
//
// Pair an instance from the terminal:
//
//	walink instances connect crm-01
//
// Inspect provider-side status:
//
//	walink instances status
//
// # Environment Variables
//
//   - WALINK_CONFIG: Path to configuration file (default: walink.yaml)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
