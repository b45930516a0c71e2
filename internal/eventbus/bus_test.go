package eventbus

import "testing"

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	failed, unsubFailed := b.Subscribe(4, TaskScheduleFailed)
	defer unsubFailed()

	b.Publish(Event{Type: TaskScheduled, Data: "t1"})
	b.Publish(Event{Type: TaskScheduleFailed, Data: "t2"})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", got)
	}
	if got := len(failed); got != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", got)
	}
	e := <-failed
	if e.Data != "t2" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TaskScheduled})
	}
	if len(ch) != 1 {
		t.Fatalf("len = %d, want 1 (extra events dropped)", len(ch))
	}
	unsub()
	unsub()
	b.Publish(Event{Type: TaskScheduled})
}
