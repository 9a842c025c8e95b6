package connect

import (
	"context"
	"sync"
	"time"
)

// poller re-queries instance status on a fixed interval while an attempt
// waits for its scan. stop only signals; the loop also exits when the
// attempt's context is canceled, so stop is safe to call from within a tick.
type poller struct {
	interval time.Duration
	tick     func(ctx context.Context)

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newPoller(interval time.Duration, tick func(ctx context.Context)) *poller {
	return &poller{
		interval: interval,
		tick:     tick,
		stopCh:   make(chan struct{}),
	}
}

func (p *poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}
