// bus/bus_test.go
package bus

import (
	"testing"
	"time"
)

func expectPayload(t *testing.T, sub *Subscription, want any) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		if got.Payload != want {
			t.Errorf("expected payload %v, got %v", want, got.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for %v", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %v", got.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"power", "wake"})
	conn.Publish(conn.NewMessage(Topic{"power", "wake"}, "time", false))

	expectPayload(t, sub, "time")
}

func TestRetainedMessage_LateSubscriber(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"state", "run-reason"}, "startup", true))

	sub := conn.Subscribe(Topic{"state", "run-reason"})
	expectPayload(t, sub, "startup")
}

func TestRetainedMessage_NilPayloadClears(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"state", "run-reason"}, "startup", true))
	conn.Publish(&Message{Topic: Topic{"state", "run-reason"}, Payload: nil, Retained: true})

	sub := conn.Subscribe(Topic{"state", "run-reason"})
	expectNoMessage(t, sub)
}

func TestWildcard_SingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	s1 := c.Subscribe(Topic{"power", "+", "fired"})
	sNo := c.Subscribe(Topic{"power", "+", "armed"})

	c.Publish(b.NewMessage(Topic{"power", "pin4", "fired"}, "m1", false))

	expectPayload(t, s1, "m1")
	expectNoMessage(t, sNo)
}

func TestWildcard_RetainedReplay(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(Topic{"power", "pin4", "fired"}, "m1", true))

	s := c.Subscribe(Topic{"power", "+", "fired"})
	expectPayload(t, s, "m1")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	s := c.Subscribe(Topic{"supervisor", "break"})
	s.Unsubscribe()

	// Channel closed; no panic on publish to a removed subscription.
	c.Publish(b.NewMessage(Topic{"supervisor", "break"}, "brk", false))

	if _, ok := <-s.Channel(); ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	b := NewBus(1)
	c := b.NewConnection("test")

	s := c.Subscribe(Topic{"power", "wake"})
	c.Publish(b.NewMessage(Topic{"power", "wake"}, "old", false))
	c.Publish(b.NewMessage(Topic{"power", "wake"}, "new", false))

	expectPayload(t, s, "new")
}

func TestDisconnectClosesAll(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	s1 := c.Subscribe(Topic{"a"})
	s2 := c.Subscribe(Topic{"b"})
	c.Disconnect()

	if _, ok := <-s1.Channel(); ok {
		t.Fatal("s1 should be closed")
	}
	if _, ok := <-s2.Channel(); ok {
		t.Fatal("s2 should be closed")
	}
}
