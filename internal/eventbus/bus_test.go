package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	bus := New()
	a, unsubA := bus.Subscribe(1)
	b, unsubB := bus.Subscribe(1)
	defer unsubA()
	defer unsubB()

	bus.Publish(Event{Type: TypeReminderFired, Data: "g1"})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		if e.Type != TypeReminderFired || e.Data != "g1" {
			t.Fatalf("unexpected event %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatalf("event time not stamped")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Type: "one"})
	bus.Publish(Event{Type: "two"})

	if e := <-ch; e.Type != "one" {
		t.Fatalf("got %q, want one", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	bus.Publish(Event{Type: "after"})
}
