package jobs

import (
	"sync"
	"time"

	"subgen/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced progress payload consumed by UI subscribers.
// Progress is a 0.0-1.0 fraction within the whole job.
type Event struct {
	Seq        int64            `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	JobID      string           `json:"jobId"`
	Type       EventType        `json:"type"`
	Stage      domain.JobStatus `json:"stage,omitempty"`
	Progress   float64          `json:"progress"`
	Message    string           `json:"message,omitempty"`
	Command    string           `json:"command,omitempty"`
	Args       []string         `json:"args,omitempty"`
	ExitCode   int              `json:"exitCode,omitempty"`
	Stderr     string           `json:"stderr,omitempty"`
	OutputPath string           `json:"outputPath,omitempty"`
}

// Terminal reports whether the event closes the job's event stream.
func (e Event) Terminal() bool {
	switch e.Stage {
	case domain.JobStatusDone, domain.JobStatusFailed, domain.JobStatusCancelled:
		return true
	default:
		return false
	}
}

// EventBus stores recent events and provides incremental reads, so a
// presenter that reattaches mid-job can catch up by sequence number.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
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

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
