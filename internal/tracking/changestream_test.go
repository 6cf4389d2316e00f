package tracking

import (
	"testing"
	"time"
)

func TestChangeStreamPublishDeliversToSubscribers(t *testing.T) {
	cs := NewChangeStream()
	events, cancel := cs.Subscribe(4)
	defer cancel()

	cs.Publish(BusChanged{BusID: "BUS001", Kind: ChangeUpdate})

	select {
	case evt := <-events:
		if evt.BusID != "BUS001" {
			t.Errorf("busId = %s, want BUS001", evt.BusID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected to receive the published event")
	}
}

func TestChangeStreamUnsubscribeStopsDelivery(t *testing.T) {
	cs := NewChangeStream()
	events, cancel := cs.Subscribe(4)
	cancel()

	cs.Publish(BusChanged{BusID: "BUS001"})

	if _, ok := <-events; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestChangeStreamFullBufferDropsWithoutBlocking(t *testing.T) {
	cs := NewChangeStream()
	events, cancel := cs.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			cs.Publish(BusChanged{BusID: "BUS001"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish should never block even when a subscriber's buffer is full")
	}
	<-events // drain the one event that made it through
}

func TestChangeStreamMultipleSubscribersAllReceive(t *testing.T) {
	cs := NewChangeStream()
	a, cancelA := cs.Subscribe(4)
	b, cancelB := cs.Subscribe(4)
	defer cancelA()
	defer cancelB()

	cs.Publish(BusChanged{BusID: "BUS001"})

	for _, ch := range []<-chan BusChanged{a, b} {
		select {
		case evt := <-ch:
			if evt.BusID != "BUS001" {
				t.Errorf("busId = %s, want BUS001", evt.BusID)
			}
		case <-time.After(time.Second):
			t.Fatal("expected both subscribers to receive the event")
		}
	}
}

func TestChangeStreamPublishHook(t *testing.T) {
	cs := NewChangeStream()
	hookCalled := make(chan BusChanged, 1)
	cs.SetPublishHook(func(evt BusChanged) { hookCalled <- evt })

	cs.Publish(BusChanged{BusID: "BUS001"})

	select {
	case evt := <-hookCalled:
		if evt.BusID != "BUS001" {
			t.Errorf("busId = %s, want BUS001", evt.BusID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the publish hook to be invoked")
	}
}
