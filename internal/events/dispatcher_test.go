package events

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDispatcher_DeliveryOrder(t *testing.T) {
	d := NewDispatcher(nil)
	var got []string

	d.Subscribe(ChannelMessage, func(any) { got = append(got, "H1") })
	d.Subscribe(ChannelMessage, func(any) { got = append(got, "H2") })
	d.Subscribe(ChannelMessage, func(any) { got = append(got, "H3") })

	d.Publish(ChannelMessage, "payload")

	want := []string{"H1", "H2", "H3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDispatcher_PassesData(t *testing.T) {
	d := NewDispatcher(nil)
	var got any
	d.Subscribe("x", func(data any) { got = data })

	d.Publish("x", 42)
	if got != 42 {
		t.Errorf("handler got %v, want 42", got)
	}
}

func TestDispatcher_NoSubscribers(t *testing.T) {
	d := NewDispatcher(nil)
	d.Publish("nobody", "data")
	if d.Count("nobody") != 0 {
		t.Errorf("Count = %d, want 0", d.Count("nobody"))
	}
}

func TestDispatcher_ChannelsAreIsolated(t *testing.T) {
	d := NewDispatcher(nil)
	var a, b int
	d.Subscribe("a", func(any) { a++ })
	d.Subscribe("b", func(any) { b++ })

	d.Publish("a", nil)
	if a != 1 || b != 0 {
		t.Errorf("a=%d b=%d, want a=1 b=0", a, b)
	}
}

func TestDispatcher_NoDedup(t *testing.T) {
	d := NewDispatcher(nil)
	calls := 0
	h := func(any) { calls++ }
	d.Subscribe("c", h)
	d.Subscribe("c", h)

	d.Publish("c", nil)
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDispatcher_PanicIsolation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewDispatcher(logger)

	var got []string
	d.Subscribe("c", func(any) { got = append(got, "before") })
	d.Subscribe("c", func(any) { panic("boom") })
	d.Subscribe("c", func(any) { got = append(got, "after") })

	d.Publish("c", nil)

	if len(got) != 2 || got[0] != "before" || got[1] != "after" {
		t.Errorf("got %v, want [before after]", got)
	}
	if !strings.Contains(buf.String(), "event handler panicked") {
		t.Errorf("expected panic to be logged, log = %q", buf.String())
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher(nil)
	var got []string

	d.Subscribe("c", func(any) { got = append(got, "1") })
	sub := d.Subscribe("c", func(any) { got = append(got, "2") })
	d.Subscribe("c", func(any) { got = append(got, "3") })

	sub.Unsubscribe()
	sub.Unsubscribe()

	d.Publish("c", nil)
	if len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("got %v, want [1 3]", got)
	}
	if d.Count("c") != 2 {
		t.Errorf("Count = %d, want 2", d.Count("c"))
	}
	if sub.Channel() != "c" {
		t.Errorf("Channel() = %q, want %q", sub.Channel(), "c")
	}
}

func TestDispatcher_ReentrantSubscribe(t *testing.T) {
	d := NewDispatcher(nil)
	calls := 0

	d.Subscribe("c", func(any) {
		calls++
		d.Subscribe("c", func(any) { calls += 10 })
	})

	// The handler added during publish only sees later publishes.
	d.Publish("c", nil)
	if calls != 1 {
		t.Errorf("calls after first publish = %d, want 1", calls)
	}

	d.Publish("c", nil)
	if calls != 12 {
		t.Errorf("calls after second publish = %d, want 12", calls)
	}
}

func TestDispatcher_UnsubscribeDuringPublish(t *testing.T) {
	d := NewDispatcher(nil)
	var got []string
	var second *Subscription

	d.Subscribe("c", func(any) {
		got = append(got, "1")
		second.Unsubscribe()
	})
	second = d.Subscribe("c", func(any) { got = append(got, "2") })

	// Snapshot semantics: the current publish still reaches handler 2.
	d.Publish("c", nil)
	d.Publish("c", nil)

	want := []string{"1", "2", "1"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
