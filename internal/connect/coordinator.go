// Package connect drives messaging instances from "not connected" to
// "connected" against a provider that authenticates out-of-band: the user
// scans a code on a separate device, and the terminal status arrives through
// two redundant channels, a push notification feed and a status poll.
package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/helioscrm/walink/internal/notify"
	"github.com/helioscrm/walink/internal/provider"
)

const defaultPollInterval = 2 * time.Second

// DefaultConnectedStates are the provider tokens treated as terminal success.
// The provider reports "open" and "connected" interchangeably across versions.
var DefaultConnectedStates = []string{"connected", "open"}

// ErrClosed is returned by Start after Shutdown.
var ErrClosed = errors.New("coordinator is shut down")

// Dialer initiates a connect/reconnect call with the remote provider.
type Dialer interface {
	Connect(ctx context.Context, req provider.ConnectRequest) (provider.ConnectResult, error)
}

// StatusSource answers point-in-time status snapshots, the poll half of the
// redundant pair.
type StatusSource interface {
	FetchStatuses(ctx context.Context, ids []string) ([]provider.InstanceStatus, error)
}

// Callbacks observe one attempt. Each fires at most once per attempt, and
// none fires after Cancel.
type Callbacks struct {
	OnScanCode  func(instanceID, scanCode string)
	OnConnected func(instanceID string, source Source)
	OnFailed    func(instanceID string, err error)
}

// Config tunes the coordinator.
type Config struct {
	// PollInterval is the recurring status-poll interval. Zero means 2s.
	PollInterval time.Duration
	// ConnectedStates is the status-equivalence set treated as Connected.
	// Empty means DefaultConnectedStates.
	ConnectedStates []string
}

// Coordinator manages connection attempts, at most one per instance.
type Coordinator struct {
	dialer Dialer
	status StatusSource
	feed   notify.Feed
	cfg    Config
	logger *slog.Logger

	connected map[string]bool

	pollTicks atomic.Uint64

	mu       sync.Mutex
	closed   bool
	attempts map[string]*Attempt
	wg       sync.WaitGroup
}

// New creates a coordinator. All collaborators are injected; the coordinator
// owns no transport of its own.
func New(dialer Dialer, status StatusSource, feed notify.Feed, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	states := cfg.ConnectedStates
	if len(states) == 0 {
		states = DefaultConnectedStates
	}
	connected := make(map[string]bool, len(states))
	for _, s := range states {
		connected[provider.NormalizeStatus(s)] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		dialer:    dialer,
		status:    status,
		feed:      feed,
		cfg:       cfg,
		logger:    logger,
		connected: connected,
		attempts:  make(map[string]*Attempt),
	}
}

// Start begins or restarts an attempt for the instance named in req. A prior
// attempt for the same instance is torn down first, without callbacks. The
// call blocks until the provider's connect response arrives; after that the
// attempt is purely reactive.
//
// Failures surface both as the returned error and through OnFailed, so
// imperative callers and event-driven callers see them alike.
// The error distinguishes *provider.TransportError from
// *provider.InvalidResponseError.
func (c *Coordinator) Start(ctx context.Context, req provider.ConnectRequest, cb Callbacks) (*Attempt, error) {
	instanceID := strings.TrimSpace(req.InstanceID)
	if instanceID == "" {
		return nil, fmt.Errorf("instance id is required")
	}
	req.InstanceID = instanceID

	a := &Attempt{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		StartedAt:  time.Now(),
		coord:      c,
		cb:         cb,
		phase:      PhaseRequesting,
	}
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	// Swap in the new attempt atomically so no window exists where two
	// attempts are registered for the same instance.
	prev := c.attempts[instanceID]
	c.attempts[instanceID] = a
	c.mu.Unlock()
	if prev != nil {
		prev.discard()
	}

	c.logger.Info("starting connection attempt",
		"instance_id", instanceID,
		"attempt_id", a.ID)

	result, err := c.dialer.Connect(ctx, req)
	if err != nil {
		err = classifyDialError(err)
		if !a.fail(err) {
			// Canceled or superseded while the call was in flight; the
			// response is discarded.
			return a, nil
		}
		return a, err
	}

	if invalid := validateResult(result, c.connected); invalid != nil {
		if !a.fail(invalid) {
			return a, nil
		}
		return a, invalid
	}

	if c.isConnectedStatus(result.Status) {
		// Provider short-circuited straight to connected; no scan needed.
		a.complete(SourceDial)
		return a, nil
	}

	a.mu.Lock()
	if a.phase != PhaseRequesting {
		a.mu.Unlock()
		return a, nil
	}
	a.phase = PhaseAwaitingScan
	a.scanCode = result.ScanCode
	a.mu.Unlock()

	if cb.OnScanCode != nil {
		cb.OnScanCode(instanceID, result.ScanCode)
	}

	c.attachListeners(a)
	return a, nil
}

// attachListeners opens the notification subscription and starts the poll,
// unless the attempt already left AwaitingScan.
func (c *Coordinator) attachListeners(a *Attempt) {
	sub, err := c.feed.Subscribe(a.ctx, a.InstanceID)
	if err != nil {
		// Push channel unavailable; the poll alone still converges.
		c.logger.Warn("notification subscribe failed, relying on poll",
			"instance_id", a.InstanceID,
			"error", err)
		sub = nil
	}
	p := newPoller(c.cfg.PollInterval, a.pollOnce)

	a.mu.Lock()
	if a.phase != PhaseAwaitingScan {
		a.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		return
	}
	a.sub = sub
	a.poll = p
	a.mu.Unlock()

	if sub != nil {
		c.wg.Add(1)
		go a.watchFeed(sub)
	}
	c.wg.Add(1)
	go a.runPoller(p)
}

// Cancel tears down the attempt for an instance without invoking callbacks.
// Calling it with no active attempt is a no-op, not an error.
func (c *Coordinator) Cancel(instanceID string) {
	c.mu.Lock()
	a := c.attempts[instanceID]
	if a != nil {
		delete(c.attempts, instanceID)
	}
	c.mu.Unlock()
	if a == nil {
		return
	}
	c.logger.Info("canceling connection attempt",
		"instance_id", instanceID,
		"attempt_id", a.ID)
	a.discard()
}

// Active returns the in-flight attempt for an instance, if any.
func (c *Coordinator) Active(instanceID string) (*Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attempts[instanceID]
	return a, ok
}

// PollTicks reports the total number of status-poll queries issued.
func (c *Coordinator) PollTicks() uint64 {
	return c.pollTicks.Load()
}

// ActiveCount reports the number of in-flight attempts.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attempts)
}

// Shutdown cancels every attempt and waits for listener goroutines to exit.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	c.closed = true
	attempts := make([]*Attempt, 0, len(c.attempts))
	for _, a := range c.attempts {
		attempts = append(attempts, a)
	}
	c.attempts = make(map[string]*Attempt)
	c.mu.Unlock()

	for _, a := range attempts {
		a.discard()
	}
	c.wg.Wait()
}

// remove drops a finished attempt from the active map. The attempt may have
// been replaced already; only the exact pointer is removed.
func (c *Coordinator) remove(a *Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts[a.InstanceID] == a {
		delete(c.attempts, a.InstanceID)
	}
}

func (c *Coordinator) isConnectedStatus(status string) bool {
	return c.connected[provider.NormalizeStatus(status)]
}

// validateResult enforces the strict response contract. A scan code is
// required unless the provider short-circuited to a connected status.
func validateResult(result provider.ConnectResult, connected map[string]bool) error {
	if strings.TrimSpace(result.InstanceID) == "" {
		return &provider.InvalidResponseError{Missing: "instanceId"}
	}
	status := provider.NormalizeStatus(result.Status)
	if status == "" {
		return &provider.InvalidResponseError{Missing: "status"}
	}
	if !connected[status] && strings.TrimSpace(result.ScanCode) == "" {
		return &provider.InvalidResponseError{Missing: "scanCode"}
	}
	return nil
}

// classifyDialError keeps provider-typed errors intact and wraps anything
// else as a transport failure so callers can always distinguish the two.
func classifyDialError(err error) error {
	var invalid *provider.InvalidResponseError
	if errors.As(err, &invalid) {
		return err
	}
	var transport *provider.TransportError
	if errors.As(err, &transport) {
		return err
	}
	return &provider.TransportError{Op: "connect", Err: err}
}
