package notify

import (
	"context"
	"sync"
)

const subscriptionBuffer = 16

// MemoryFeed is an in-process Feed. It backs tests and local deployments
// where the provider has no event socket configured.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*memorySub
}

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[uint64]*memorySub)}
}

type memorySub struct {
	feed       *MemoryFeed
	instanceID string
	id         uint64
	events     chan StatusEvent
	closeOnce  sync.Once
}

func (s *memorySub) Events() <-chan StatusEvent { return s.events }

func (s *memorySub) Close() {
	s.closeOnce.Do(func() {
		// Removal and channel close happen under the feed lock so Publish can
		// never send on a closed channel.
		s.feed.mu.Lock()
		defer s.feed.mu.Unlock()
		s.feed.removeLocked(s.instanceID, s.id)
		close(s.events)
	})
}

// Subscribe registers interest in one instance's status events.
func (f *MemoryFeed) Subscribe(ctx context.Context, instanceID string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &memorySub{
		feed:       f,
		instanceID: instanceID,
		id:         f.nextID,
		events:     make(chan StatusEvent, subscriptionBuffer),
	}
	if f.subs[instanceID] == nil {
		f.subs[instanceID] = make(map[uint64]*memorySub)
	}
	f.subs[instanceID][sub.id] = sub
	return sub, nil
}

// Publish delivers an event to every subscriber of its instance. Slow
// subscribers with a full buffer miss the event; the poll path covers them.
func (f *MemoryFeed) Publish(ev StatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs[ev.InstanceID] {
		select {
		case sub.events <- ev:
		default:
		}
	}
}

func (f *MemoryFeed) removeLocked(instanceID string, id uint64) {
	if m := f.subs[instanceID]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(f.subs, instanceID)
		}
	}
}

// SubscriberCount reports how many subscriptions are open for an instance.
func (f *MemoryFeed) SubscriberCount(instanceID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[instanceID])
}
