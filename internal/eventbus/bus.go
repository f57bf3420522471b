// Package eventbus is a lightweight in-memory fanout used to decouple
// the timetable service from observability.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may drop events (bounded backpressure).
package eventbus

import (
	"sync"
	"time"
)

// Job lifecycle event types published by the timetable service.
const (
	JobStarted  = "job.started"
	JobFinished = "job.finished"
	JobMissed   = "job.missed" // a boundary was skipped: the previous run was still executing
)

// Event is a small, JSON-serializable signal.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// JobRun is the payload carried by JobFinished (and JobMissed) events.
type JobRun struct {
	Job      string
	Steps    uint64
	Duration time.Duration
	Error    string
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.Mutex
	seq  uint64
	subs map[uint64]chan Event
}

func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

// Publish delivers e to every subscriber without blocking; a subscriber
// whose buffer is full misses the event.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a receive channel and an unsubscribe function. The
// channel closes on unsubscribe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
