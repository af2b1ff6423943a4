package ws

import (
	"errors"
	"testing"
	"time"
)

type chanSubscriber struct {
	received chan []byte
	failSend bool
	closed   chan struct{}
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{
		received: make(chan []byte, 8),
		closed:   make(chan struct{}),
	}
}

func (c *chanSubscriber) Send(payload []byte) error {
	if c.failSend {
		return errors.New("send failed")
	}
	c.received <- payload
	return nil
}

func (c *chanSubscriber) Close() {
	close(c.closed)
}

func waitPayload(t *testing.T, sub *chanSubscriber) []byte {
	t.Helper()
	select {
	case payload := <-sub.received:
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestHubBroadcastsToOrganizerClientsOnly(t *testing.T) {
	hub := NewHub()
	org := newChanSubscriber()
	other := newChanSubscriber()
	hub.Register("org-1", org)
	hub.Register("org-2", other)

	hub.Broadcast("org-1", []byte("application submitted"))

	if got := string(waitPayload(t, org)); got != "application submitted" {
		t.Fatalf("unexpected payload %q", got)
	}
	select {
	case payload := <-other.received:
		t.Fatalf("unexpected delivery to other organizer: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := newChanSubscriber()
	hub.Register("org-1", sub)
	hub.Unregister("org-1", sub)

	hub.Broadcast("org-1", []byte("late event"))

	select {
	case payload := <-sub.received:
		t.Fatalf("unexpected delivery after unregister: %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()
	broken := newChanSubscriber()
	broken.failSend = true
	healthy := newChanSubscriber()
	hub.Register("org-1", broken)
	hub.Register("org-1", healthy)

	hub.Broadcast("org-1", []byte("first"))

	select {
	case <-broken.closed:
	case <-time.After(time.Second):
		t.Fatal("expected failing subscriber closed")
	}
	if got := string(waitPayload(t, healthy)); got != "first" {
		t.Fatalf("unexpected payload %q", got)
	}

	hub.Broadcast("org-1", []byte("second"))
	if got := string(waitPayload(t, healthy)); got != "second" {
		t.Fatalf("unexpected payload %q", got)
	}
}
