package api

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "run1"
	ch := b.Subscribe(rid)

	evt := SSEEvent{Type: "run.progress", Data: map[string]any{"iteration": 10}}
	b.Publish(rid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["iteration"].(int) != 10 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
		// acceptable if already drained and closed
	}
}

func TestBrokerIsolatesRuns(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("run1")
	ch2 := b.Subscribe("run2")
	defer b.Unsubscribe("run1", ch1)
	defer b.Unsubscribe("run2", ch2)

	b.Publish("run1", SSEEvent{Type: "run.completed", Data: map[string]any{}})

	select {
	case <-ch1:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("run1 subscriber missed event")
	}
	select {
	case evt := <-ch2:
		t.Fatalf("run2 subscriber got stray event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
