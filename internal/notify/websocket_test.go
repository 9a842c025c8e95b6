package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/helioscrm/walink/internal/backoff"
)

// fakeSocket is a websocket endpoint that records subscribe frames and lets
// tests push status events to the connected client.
type fakeSocket struct {
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed []string
}

func (s *fakeSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		var frame wsOutbound
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Action == "subscribe" {
			s.mu.Lock()
			s.subscribed = append(s.subscribed, frame.InstanceID)
			s.mu.Unlock()
		}
	}
}

func (s *fakeSocket) push(t *testing.T, ev StatusEvent) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	data, _ := json.Marshal(map[string]string{
		"event":      "status.update",
		"instanceId": ev.InstanceID,
		"status":     ev.Status,
	})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (s *fakeSocket) subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscribed...)
}

func startFeed(t *testing.T, socket *fakeSocket) (*WSFeed, context.CancelFunc) {
	t.Helper()
	server := httptest.NewServer(socket)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewWSFeed(WSFeedConfig{
		URL: wsURL,
		Backoff: backoff.Policy{
			Initial: 10 * time.Millisecond,
			Max:     50 * time.Millisecond,
			Factor:  2,
		},
	}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	go feed.Run(ctx)
	t.Cleanup(cancel)
	return feed, cancel
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWSFeedDeliversEvents(t *testing.T) {
	socket := &fakeSocket{}
	feed, _ := startFeed(t, socket)

	sub, err := feed.Subscribe(context.Background(), "crm-01")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	waitFor(t, 2*time.Second, func() bool {
		return len(socket.subscriptions()) >= 1
	})

	socket.push(t, StatusEvent{InstanceID: "crm-01", Status: "open"})

	select {
	case ev := <-sub.Events():
		if ev.InstanceID != "crm-01" || ev.Status != "open" {
			t.Errorf("event = %+v, want {crm-01 open}", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWSFeedResubscribesAfterReconnect(t *testing.T) {
	socket := &fakeSocket{}
	feed, _ := startFeed(t, socket)

	sub, err := feed.Subscribe(context.Background(), "crm-01")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	waitFor(t, 2*time.Second, func() bool {
		return len(socket.subscriptions()) >= 1
	})

	// Drop the socket; the feed must reconnect and re-register crm-01.
	socket.mu.Lock()
	_ = socket.conn.Close()
	socket.mu.Unlock()

	waitFor(t, 2*time.Second, func() bool {
		return len(socket.subscriptions()) >= 2
	})

	socket.push(t, StatusEvent{InstanceID: "crm-01", Status: "open"})

	select {
	case ev := <-sub.Events():
		if ev.Status != "open" {
			t.Errorf("status = %q, want open", ev.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered after reconnect")
	}
}
