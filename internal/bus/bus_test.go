package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	b.Publish(KindStatusChanged, "test")

	select {
	case evt := <-ch:
		if evt.Kind != KindStatusChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStatusChanged)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("socket.", 10)
	defer unsub()

	b.Publish(KindStatusChanged, nil)
	b.Publish(KindSocketConnected, nil)

	select {
	case evt := <-ch:
		if evt.Kind != KindSocketConnected {
			t.Errorf("got kind %q, want %q", evt.Kind, KindSocketConnected)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the status event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("status.", 10)
	unsub()

	b.Publish(KindStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(KindMessageNew, nil)
	// This should be dropped (non-blocking).
	b.Publish(KindMessageConfirmed, nil)

	evt := <-ch
	if evt.Kind != KindMessageNew {
		t.Errorf("got %q, want %q", evt.Kind, KindMessageNew)
	}
}
