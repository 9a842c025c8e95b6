// Package provider implements the HTTP client for the remote messaging
// provider that pairs instances out-of-band via scan codes.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// ConnectRequest identifies the instance to connect or reconnect.
type ConnectRequest struct {
	InstanceID  string `json:"instanceId"`
	DisplayName string `json:"displayName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// ConnectResult is the strict contract produced from whatever shape the
// provider returned. ScanCode may be empty when the provider short-circuits
// directly to a connected status.
type ConnectResult struct {
	InstanceID string
	ScanCode   string
	Status     string
}

// InstanceStatus is one entry of a status snapshot.
type InstanceStatus struct {
	InstanceID string
	Status     string
}

// Config configures the provider client.
type Config struct {
	// BaseURL is the provider API root, e.g. https://wa.example.com.
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string
	// Timeout bounds each request. Zero means defaultTimeout.
	Timeout time.Duration
}

// Client talks to the remote provider over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Connect begins or restarts pairing for an instance. The returned result has
// passed normalization; transport and payload failures are reported as
// *TransportError and *InvalidResponseError respectively.
func (c *Client) Connect(ctx context.Context, req ConnectRequest) (ConnectResult, error) {
	if strings.TrimSpace(req.InstanceID) == "" {
		return ConnectResult{}, fmt.Errorf("instance id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ConnectResult{}, fmt.Errorf("encode connect request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/instance/connect/%s", c.baseURL, url.PathEscape(req.InstanceID))
	data, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return ConnectResult{}, err
	}

	result, err := normalizeConnectPayload(data)
	if err != nil {
		c.logger.Warn("provider returned malformed connect payload",
			"instance_id", req.InstanceID,
			"error", err)
		return ConnectResult{}, err
	}

	c.logger.Debug("connect call completed",
		"instance_id", result.InstanceID,
		"status", result.Status,
		"has_scan_code", result.ScanCode != "")
	return result, nil
}

// FetchStatuses returns the current status of the named instances, or of all
// instances when ids is empty.
func (c *Client) FetchStatuses(ctx context.Context, ids []string) ([]InstanceStatus, error) {
	endpoint := c.baseURL + "/instance/fetchInstances"
	data, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	statuses, err := normalizeStatusPayload(data)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return statuses, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	filtered := statuses[:0]
	for _, st := range statuses {
		if want[st.InstanceID] {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "call", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Op:  "call",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200)),
		}
	}
	return data, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
