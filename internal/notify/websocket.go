package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helioscrm/walink/internal/backoff"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 25 * time.Second
	wsMaxPayload  = 1 << 20
	wsDialTimeout = 15 * time.Second
)

// WSFeedConfig configures the websocket feed.
type WSFeedConfig struct {
	// URL is the provider's event socket, e.g. wss://wa.example.com/events.
	URL string
	// APIKey is sent as the apikey header on the upgrade request.
	APIKey string
	// Backoff governs the reconnect delay. Zero value means DefaultPolicy.
	Backoff backoff.Policy
}

// WSFeed subscribes to the provider's event socket and fans status events out
// to per-instance subscriptions. The socket is redundant with the poll path:
// a dropped connection degrades latency, not correctness, so reconnects are
// retried forever with backoff.
type WSFeed struct {
	cfg    WSFeedConfig
	logger *slog.Logger
	fanout *MemoryFeed

	mu        sync.Mutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	instances map[string]int
}

// wsInbound is one frame from the provider's event socket.
type wsInbound struct {
	Event      string `json:"event"`
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
}

// wsOutbound is a subscription control frame sent to the provider.
type wsOutbound struct {
	Action     string `json:"action"`
	InstanceID string `json:"instanceId"`
}

// NewWSFeed creates a websocket feed. Run must be called before events flow.
func NewWSFeed(cfg WSFeedConfig, logger *slog.Logger) *WSFeed {
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.DefaultPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSFeed{
		cfg:       cfg,
		logger:    logger,
		fanout:    NewMemoryFeed(),
		instances: make(map[string]int),
	}
}

// Subscribe registers interest in one instance. The subscription survives
// socket reconnects; Close releases it.
func (f *WSFeed) Subscribe(ctx context.Context, instanceID string) (Subscription, error) {
	inner, err := f.fanout.Subscribe(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.instances[instanceID]++
	first := f.instances[instanceID] == 1
	conn := f.conn
	f.mu.Unlock()

	if first && conn != nil {
		f.send(conn, wsOutbound{Action: "subscribe", InstanceID: instanceID})
	}
	return &wsSub{feed: f, instanceID: instanceID, inner: inner}, nil
}

type wsSub struct {
	feed       *WSFeed
	instanceID string
	inner      Subscription
	closeOnce  sync.Once
}

func (s *wsSub) Events() <-chan StatusEvent { return s.inner.Events() }

func (s *wsSub) Close() {
	s.closeOnce.Do(func() {
		s.inner.Close()
		s.feed.release(s.instanceID)
	})
}

func (f *WSFeed) release(instanceID string) {
	f.mu.Lock()
	f.instances[instanceID]--
	last := f.instances[instanceID] <= 0
	if last {
		delete(f.instances, instanceID)
	}
	conn := f.conn
	f.mu.Unlock()

	if last && conn != nil {
		f.send(conn, wsOutbound{Action: "unsubscribe", InstanceID: instanceID})
	}
}

// Run dials the event socket and keeps it alive until ctx is canceled.
// Blocks; run it on its own goroutine.
func (f *WSFeed) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.runConn(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := f.cfg.Backoff.Next(attempt)
		f.logger.Warn("event socket disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// runConn dials once and reads until the connection fails.
func (f *WSFeed) runConn(ctx context.Context) error {
	dialer := &websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	header := http.Header{}
	if f.cfg.APIKey != "" {
		header.Set("apikey", f.cfg.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}
	defer conn.Close() //nolint:errcheck

	conn.SetReadLimit(wsMaxPayload)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	f.mu.Lock()
	f.conn = conn
	pending := make([]string, 0, len(f.instances))
	for id := range f.instances {
		pending = append(pending, id)
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
	}()

	// Re-register every live subscription on the fresh socket.
	for _, id := range pending {
		f.send(conn, wsOutbound{Action: "subscribe", InstanceID: id})
	}
	f.logger.Info("event socket connected", "url", f.cfg.URL, "subscriptions", len(pending))

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go f.pingLoop(pingCtx, conn)

	for {
		var frame wsInbound
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.InstanceID == "" || frame.Status == "" {
			continue
		}
		f.fanout.Publish(StatusEvent{InstanceID: frame.InstanceID, Status: frame.Status})
	}
}

func (f *WSFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (f *WSFeed) send(conn *websocket.Conn, frame wsOutbound) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		f.logger.Debug("event socket write failed", "error", err)
	}
}
