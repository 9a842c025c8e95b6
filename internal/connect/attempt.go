package connect

import (
	"context"
	"sync"
	"time"

	"github.com/helioscrm/walink/internal/notify"
)

// Attempt is one in-flight pairing of an instance with the provider. It is
// created by Coordinator.Start and mutated only by the coordinator's own
// handlers. The push and poll listeners race; whichever observes the terminal
// status first wins, and every transition re-checks the phase under the
// attempt lock so the loser and any stale handler become no-ops.
type Attempt struct {
	// ID distinguishes this attempt from earlier attempts for the same
	// instance in logs and events.
	ID         string
	InstanceID string
	StartedAt  time.Time

	coord *Coordinator
	cb    Callbacks

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu           sync.Mutex
	phase        Phase
	scanCode     string
	connectedVia Source
	failure      error
	sub          notify.Subscription
	poll         *poller

	teardownOnce sync.Once
}

// Phase returns the current lifecycle phase.
func (a *Attempt) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// ScanCode returns the scan payload, empty until AwaitingScan.
func (a *Attempt) ScanCode() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCode
}

// ConnectedVia reports which listener won the race, empty unless Connected.
func (a *Attempt) ConnectedVia() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectedVia
}

// Err returns the failure reason, nil unless Failed.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

// complete drives the attempt to Connected. Exactly one caller wins; later
// calls from the redundant listener or stale handlers are no-ops.
func (a *Attempt) complete(source Source) {
	a.mu.Lock()
	if a.phase != PhaseRequesting && a.phase != PhaseAwaitingScan {
		a.mu.Unlock()
		return
	}
	a.phase = PhaseConnected
	a.connectedVia = source
	a.mu.Unlock()

	a.teardown()
	a.coord.remove(a)
	a.coord.logger.Info("instance connected",
		"instance_id", a.InstanceID,
		"attempt_id", a.ID,
		"source", source,
		"elapsed", time.Since(a.StartedAt))
	if a.cb.OnConnected != nil {
		a.cb.OnConnected(a.InstanceID, source)
	}
}

// fail drives the attempt to Failed. Returns false when the attempt was
// already terminal or canceled, in which case no callback fires.
func (a *Attempt) fail(err error) bool {
	a.mu.Lock()
	if a.phase != PhaseRequesting && a.phase != PhaseAwaitingScan {
		a.mu.Unlock()
		return false
	}
	a.phase = PhaseFailed
	a.failure = err
	a.mu.Unlock()

	a.teardown()
	a.coord.remove(a)
	a.coord.logger.Warn("instance connect failed",
		"instance_id", a.InstanceID,
		"attempt_id", a.ID,
		"error", err)
	if a.cb.OnFailed != nil {
		a.cb.OnFailed(a.InstanceID, err)
	}
	return true
}

// discard tears the attempt down without invoking any callback. Used by
// Cancel and by Start when replacing a prior attempt for the same instance.
func (a *Attempt) discard() {
	a.mu.Lock()
	if a.phase.terminal() {
		a.mu.Unlock()
		return
	}
	a.phase = PhaseIdle
	a.mu.Unlock()
	a.teardown()
}

// teardown releases the notification and poll handles exactly once.
func (a *Attempt) teardown() {
	a.teardownOnce.Do(func() {
		a.cancelCtx()
		a.mu.Lock()
		sub := a.sub
		poll := a.poll
		a.sub = nil
		a.poll = nil
		a.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		if poll != nil {
			poll.stop()
		}
	})
}

// watchFeed consumes the change-notification subscription until the attempt
// ends or the subscription closes.
func (a *Attempt) watchFeed(sub notify.Subscription) {
	defer a.coord.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.InstanceID != a.InstanceID {
				continue
			}
			if a.coord.isConnectedStatus(ev.Status) {
				a.complete(SourcePush)
				return
			}
		}
	}
}

// runPoller drives the recurring status poll until the attempt ends.
func (a *Attempt) runPoller(p *poller) {
	defer a.coord.wg.Done()
	p.run(a.ctx)
}

// pollOnce performs one status-snapshot query. Transient failures are logged
// and retried on the next tick; the push channel covers the gap.
func (a *Attempt) pollOnce(ctx context.Context) {
	a.coord.pollTicks.Add(1)
	tickCtx, cancel := context.WithTimeout(ctx, a.coord.cfg.PollInterval)
	defer cancel()

	statuses, err := a.coord.status.FetchStatuses(tickCtx, []string{a.InstanceID})
	if err != nil {
		a.coord.logger.Debug("status poll failed",
			"instance_id", a.InstanceID,
			"error", err)
		return
	}
	for _, st := range statuses {
		if st.InstanceID != a.InstanceID {
			continue
		}
		if a.coord.isConnectedStatus(st.Status) {
			a.complete(SourcePoll)
			return
		}
	}
}
