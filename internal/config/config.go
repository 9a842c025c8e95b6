// Package config loads and validates the walink configuration file.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Connect   ConnectConfig   `yaml:"connect"`
	Storage   StorageConfig   `yaml:"storage"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP/WS surface.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// ProviderConfig configures the remote messaging provider.
type ProviderConfig struct {
	// BaseURL is the provider API root.
	BaseURL string `yaml:"base_url"`
	// WSURL is the provider event socket. Empty disables the push channel;
	// the poll path alone still converges.
	WSURL string `yaml:"ws_url"`
	// APIKey authenticates every provider request.
	APIKey string `yaml:"api_key"`
	// TimeoutMs bounds each provider HTTP call in milliseconds.
	TimeoutMs int `yaml:"timeout_ms"`
}

// ConnectConfig tunes the connection coordinator.
type ConnectConfig struct {
	// PollIntervalMs is the status-poll interval in milliseconds.
	PollIntervalMs int `yaml:"poll_interval_ms"`
	// ConnectedStates are the provider status tokens treated as terminal
	// success. All tokens in the set are equivalent.
	ConnectedStates []string `yaml:"connected_states"`
}

// StorageConfig locates the instance registry.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ReconcileConfig configures the scheduled status sync.
type ReconcileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the configuration used when a field is absent.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			HTTPPort: 8640,
		},
		Provider: ProviderConfig{
			TimeoutMs: 15000,
		},
		Connect: ConnectConfig{
			PollIntervalMs:  2000,
			ConnectedStates: []string{"connected", "open"},
		},
		Storage: StorageConfig{
			Path: "walink.db",
		},
		Reconcile: ReconcileConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks cross-field consistency after loading.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.BaseURL) == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range", c.Server.HTTPPort)
	}
	if c.Connect.PollIntervalMs <= 0 {
		return fmt.Errorf("connect.poll_interval_ms must be positive")
	}
	if len(c.Connect.ConnectedStates) == 0 {
		return fmt.Errorf("connect.connected_states must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}

// PollInterval returns the coordinator poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Connect.PollIntervalMs) * time.Millisecond
}

// ProviderTimeout returns the provider request timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutMs) * time.Millisecond
}
