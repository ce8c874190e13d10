package events

import (
	"testing"
	"time"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(4)
	defer cancel()

	bus.Emit(TypeAnomalyFlagged, map[string]interface{}{"subject": "0xabc", "severity": 9})

	select {
	case evt := <-ch:
		if evt.Type != TypeAnomalyFlagged {
			t.Fatalf("unexpected type: %s", evt.Type)
		}
		if evt.Payload["severity"] != 9 {
			t.Fatalf("payload lost: %+v", evt.Payload)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Second publish overflows the buffer; it must drop, not block.
		bus.Emit(TypeOrderSettled, nil)
		bus.Emit(TypeOrderSettled, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	bus.Close()
}
