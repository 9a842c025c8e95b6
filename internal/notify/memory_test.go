package notify

import (
	"context"
	"testing"
	"time"
)

func TestMemoryFeedDeliversToInstanceSubscribers(t *testing.T) {
	feed := NewMemoryFeed()

	subA, err := feed.Subscribe(context.Background(), "a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	subB, err := feed.Subscribe(context.Background(), "b")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subA.Close()
	defer subB.Close()

	feed.Publish(StatusEvent{InstanceID: "a", Status: "open"})

	select {
	case ev := <-subA.Events():
		if ev.Status != "open" {
			t.Errorf("status = %q, want open", ev.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive event")
	}

	select {
	case ev := <-subB.Events():
		t.Fatalf("subscriber b received event for instance a: %+v", ev)
	default:
	}
}

func TestMemoryFeedCloseIsIdempotent(t *testing.T) {
	feed := NewMemoryFeed()
	sub, err := feed.Subscribe(context.Background(), "a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sub.Close()
	sub.Close()

	if n := feed.SubscriberCount("a"); n != 0 {
		t.Errorf("subscriber count = %d, want 0", n)
	}

	// Publishing after close must not panic or deliver.
	feed.Publish(StatusEvent{InstanceID: "a", Status: "open"})

	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still delivering after close")
	}
}

func TestMemoryFeedFullBufferDropsEvent(t *testing.T) {
	feed := NewMemoryFeed()
	sub, err := feed.Subscribe(context.Background(), "a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	for i := 0; i < subscriptionBuffer+10; i++ {
		feed.Publish(StatusEvent{InstanceID: "a", Status: "connecting"})
	}

	drained := 0
	for {
		select {
		case <-sub.Events():
			drained++
		default:
			if drained != subscriptionBuffer {
				t.Errorf("drained %d events, want %d", drained, subscriptionBuffer)
			}
			return
		}
	}
}
