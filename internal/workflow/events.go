package workflow

import (
	"sync"
	"time"

	"dubbing/internal/queue"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventStatus    EventType = "status"
	EventProgress  EventType = "progress"
	EventRetry     EventType = "retry"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventBreaker   EventType = "breaker"
)

// Event is a sequenced job-state change consumed by presentation layers.
type Event struct {
	Seq        int64        `json:"seq"`
	Timestamp  time.Time    `json:"timestamp"`
	Type       EventType    `json:"type"`
	JobID      string       `json:"job_id,omitempty"`
	Status     queue.Status `json:"status,omitempty"`
	Progress   int          `json:"progress,omitempty"`
	Message    string       `json:"message,omitempty"`
	Dependency string       `json:"dependency,omitempty"`
}

const (
	defaultEventCapacity = 500
	subscriberBuffer     = 64
)

// EventBus stores recent events for incremental reads and fans them out to
// live subscribers. Publishing never blocks; slow subscribers miss events and
// can catch up with Since.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []Event
	subscribers map[int]chan Event
	nextSub     int
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = defaultEventCapacity
	}
	return &EventBus{
		maxEvents:   maxEvents,
		events:      make([]Event, 0, maxEvents),
		subscribers: make(map[int]chan Event),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// Since returns events with sequence strictly greater than seq, oldest first.
// A positive limit returns only the first limit of them so a caller paging
// with the last returned sequence sees every retained event.
func (b *EventBus) Since(seq int64, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq <= seq {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, event)
	}
	return out
}

// Subscribe registers a live listener. The returned function unsubscribes and
// closes the channel.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSub
	b.nextSub++
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}
