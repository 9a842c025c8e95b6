// Package notify delivers asynchronous instance status events, the push half
// of the push+poll pair the connection coordinator races.
package notify

import "context"

// StatusEvent reports a provider status change for one instance.
type StatusEvent struct {
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
}

// Subscription is an ownership handle on one instance's event stream.
// Close is idempotent; after Close the Events channel is closed and no
// further events are delivered.
type Subscription interface {
	Events() <-chan StatusEvent
	Close()
}

// Feed hands out per-instance subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, instanceID string) (Subscription, error)
}
