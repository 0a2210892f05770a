package workflow

import (
	"testing"
	"time"
)

func TestAdmissionQueueFIFOAndRemove(t *testing.T) {
	q := newAdmissionQueue()
	for _, id := range []string{"a", "b", "c"} {
		if !q.push(id) {
			t.Fatalf("push %s refused", id)
		}
	}
	if !q.remove("b") {
		t.Fatal("expected queued id to be removed")
	}
	if q.remove("missing") {
		t.Fatal("expected unknown id to be ignored")
	}

	first, ok := q.pop()
	if !ok || first != "a" {
		t.Fatalf("expected a, got %q ok=%v", first, ok)
	}
	if queued, active := q.counts(); queued != 1 || active != 1 {
		t.Fatalf("unexpected counts queued=%d active=%d", queued, active)
	}
	q.done()
	second, _ := q.pop()
	if second != "c" {
		t.Fatalf("expected c, got %q", second)
	}
}

func TestAdmissionQueueCloseReleasesWaiters(t *testing.T) {
	q := newAdmissionQueue()
	result := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()
	select {
	case ok := <-result:
		if ok {
			t.Fatal("expected pop to report closed queue")
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not return after close")
	}
	if q.push("late") {
		t.Fatal("expected push after close to be refused")
	}
}

func TestAdmissionQueueCloseLeavesQueuedIDs(t *testing.T) {
	q := newAdmissionQueue()
	q.push("a")
	q.close()
	if _, ok := q.pop(); ok {
		t.Fatal("expected closed queue to stop handing out ids")
	}
	if queued, _ := q.counts(); queued != 1 {
		t.Fatalf("expected id to remain queued, got %d", queued)
	}
}

func TestEventBusSequencesAndRetention(t *testing.T) {
	bus := NewEventBus(3)
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: EventProgress, JobID: "job", Progress: i * 10})
	}
	all := bus.Since(0, 0)
	if len(all) != 3 || all[0].Seq != 3 || all[2].Seq != 5 {
		t.Fatalf("expected the newest 3 events, got %+v", all)
	}
	if all[0].Timestamp.IsZero() {
		t.Fatal("expected publish to stamp missing timestamps")
	}
	if tail := bus.Since(4, 0); len(tail) != 1 || tail[0].Progress != 40 {
		t.Fatalf("unexpected tail %+v", tail)
	}
	limited := bus.Since(0, 2)
	if len(limited) != 2 || limited[0].Seq != 3 || limited[1].Seq != 4 {
		t.Fatalf("expected the oldest 2 retained events, got %+v", limited)
	}
	if rest := bus.Since(limited[1].Seq, 2); len(rest) != 1 || rest[0].Seq != 5 {
		t.Fatalf("expected paging to resume after seq 4, got %+v", rest)
	}
}

func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(0)
	events, cancel := bus.Subscribe()

	bus.Publish(Event{Type: EventSubmitted, JobID: "job-1"})
	select {
	case event := <-events:
		if event.JobID != "job-1" || event.Seq != 1 {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	bus.Publish(Event{Type: EventSubmitted, JobID: "job-2"})
	if _, open := <-events; open {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestProgressAfterUsesWeights(t *testing.T) {
	plan := []pipelineStage{
		{name: "extract", weight: 1},
		{name: "synthesize", weight: 2},
		{name: "assemble", weight: 1},
	}
	cases := []struct {
		index    int
		fraction float64
		want     int
	}{
		{0, 1, 25},
		{1, 0.5, 50},
		{1, 1, 75},
		{2, 1, 100},
	}
	for _, tc := range cases {
		if got := progressAfter(plan, tc.index, tc.fraction); got != tc.want {
			t.Fatalf("progressAfter(%d, %.1f) = %d, want %d", tc.index, tc.fraction, got, tc.want)
		}
	}
	if got := progressAfter(nil, 0, 1); got != 0 {
		t.Fatalf("expected 0 for empty plan, got %d", got)
	}
}

func TestDeriveStageLabel(t *testing.T) {
	cases := map[string]string{
		"synthesizing_speech": "Synthesizing Speech",
		"extract":             "Extract",
		"  ":                  "",
	}
	for in, want := range cases {
		if got := deriveStageLabel(in); got != want {
			t.Fatalf("deriveStageLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
