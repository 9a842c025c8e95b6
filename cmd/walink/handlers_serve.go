package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/helioscrm/walink/internal/config"
	"github.com/helioscrm/walink/internal/connect"
	"github.com/helioscrm/walink/internal/gateway"
	"github.com/helioscrm/walink/internal/instances"
	"github.com/helioscrm/walink/internal/notify"
	"github.com/helioscrm/walink/internal/provider"
	"github.com/helioscrm/walink/internal/reconcile"
)

// runServe assembles the full server and blocks until the context is
// canceled by a shutdown signal.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Logging, debug)
	slog.SetDefault(logger)
	logger.Info("starting walink", "version", version)

	store, err := instances.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open instance registry: %w", err)
	}
	defer store.Close() //nolint:errcheck

	client, err := provider.NewClient(provider.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.ProviderTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("provider client: %w", err)
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
		// Without an event socket the poll path alone drives attempts to
		// completion, just with higher latency.
		logger.Warn("provider.ws_url not set, push notifications disabled")
		feed = notify.NewMemoryFeed()
	}

	coordinator := connect.New(client, client, feed, connect.Config{
		PollInterval:    cfg.PollInterval(),
		ConnectedStates: cfg.Connect.ConnectedStates,
	}, logger)

	var reconciler *reconcile.Reconciler
	if cfg.Reconcile.Enabled {
		reconciler = reconcile.New(client, store, cfg.Reconcile.Schedule, logger)
	}

	server := gateway.New(cfg, coordinator, store, reconciler, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	server.Stop(context.Background())
	return nil
}

// buildLogger constructs the slog logger from the logging config. The debug
// flag overrides the configured level.
func buildLogger(cfg config.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
