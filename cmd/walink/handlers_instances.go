package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/helioscrm/walink/internal/config"
	"github.com/helioscrm/walink/internal/connect"
	"github.com/helioscrm/walink/internal/instances"
	"github.com/helioscrm/walink/internal/notify"
	"github.com/helioscrm/walink/internal/provider"
	"github.com/helioscrm/walink/internal/qr"
)

// runInstancesList queries a running walink server for its registry.
func runInstancesList(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverBase(cfg)+"/api/instances", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach walink server (is it running?): %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}

	var records []instances.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return fmt.Errorf("decode server response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSOURCE\tUPDATED")
	for _, rec := range records {
		updated := ""
		if !rec.UpdatedAt.IsZero() {
			updated = rec.UpdatedAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.DisplayName, rec.Status, rec.StatusSource, updated)
	}
	return w.Flush()
}

// runInstancesStatus prints the provider's live status snapshot.
func runInstancesStatus(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}
	client, err := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.ProviderTimeout(),
	}, nil)
	if err != nil {
		return err
	}

	statuses, err := client.FetchStatuses(ctx, nil)
	if err != nil {
		return fmt.Errorf("fetch provider statuses: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS")
	for _, st := range statuses {
		fmt.Fprintf(w, "%s\t%s\n", st.InstanceID, st.Status)
	}
	return w.Flush()
}

// runInstancesConnect drives one connection attempt interactively: request
// the scan code, show it, then wait for the terminal phase. Canceling the
// context (Ctrl-C) abandons the attempt.
func runInstancesConnect(ctx context.Context, configPath, instanceID, displayName, phoneNumber, pngPath string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}
	logger := buildLogger(cfg.Logging, false)

	client, err := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.ProviderTimeout(),
	}, logger)
	if err != nil {
		return err
	}

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	var feed notify.Feed
	if cfg.Provider.WSURL != "" {
		ws := notify.NewWSFeed(notify.WSFeedConfig{
			URL:    cfg.Provider.WSURL,
			APIKey: cfg.Provider.APIKey,
		}, logger)
		go ws.Run(feedCtx)
		feed = ws
	} else {
		feed = notify.NewMemoryFeed()
	}

	coordinator := connect.New(client, client, feed, connect.Config{
		PollInterval:    cfg.PollInterval(),
		ConnectedStates: cfg.Connect.ConnectedStates,
	}, logger)
	defer coordinator.Shutdown()

	done := make(chan error, 1)
	attempt, err := coordinator.Start(ctx, provider.ConnectRequest{
		InstanceID:  instanceID,
		DisplayName: displayName,
		PhoneNumber: phoneNumber,
	}, connect.Callbacks{
		OnScanCode: func(_, scanCode string) {
			if err := showScanCode(scanCode, pngPath); err != nil {
				fmt.Fprintln(os.Stderr, "Warning:", err)
			}
		},
		OnConnected: func(_ string, source connect.Source) {
			fmt.Printf("Instance %s connected (via %s).\n", instanceID, source)
			done <- nil
		},
		OnFailed: func(_ string, err error) {
			done <- err
		},
	})
	if err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}

	if attempt.Phase() == connect.PhaseConnected {
		fmt.Printf("Instance %s is already connected.\n", instanceID)
		return nil
	}
	fmt.Println("Waiting for the device to scan... (Ctrl-C to cancel)")

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		coordinator.Cancel(instanceID)
		fmt.Println("Attempt canceled.")
		return nil
	}
}

// runInstancesCancel tells a running walink server to abandon an attempt.
func runInstancesCancel(ctx context.Context, configPath, instanceID string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}

	url := serverBase(cfg) + "/api/instances/" + instanceID + "/connect"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach walink server (is it running?): %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}

	fmt.Printf("Canceled any pending attempt for %s.\n", instanceID)
	return nil
}

// showScanCode presents the scan code to the user. Raw pairing strings render
// inline as a QR block; pre-rendered provider images can only go to a file.
func showScanCode(scanCode, pngPath string) error {
	if pngPath != "" {
		if err := qr.WritePNG(scanCode, pngPath); err != nil {
			return err
		}
		fmt.Printf("Scan code written to %s. Scan it with the device.\n", pngPath)
		return nil
	}
	if qr.IsImagePayload(scanCode) {
		path := "walink-scan.png"
		if err := qr.WritePNG(scanCode, path); err != nil {
			return err
		}
		fmt.Printf("Provider sent a pre-rendered code; written to %s. Scan it with the device.\n", path)
		return nil
	}
	block, err := qr.RenderTerminal(scanCode)
	if err != nil {
		return err
	}
	fmt.Println(block)
	return nil
}

func serverBase(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
}
