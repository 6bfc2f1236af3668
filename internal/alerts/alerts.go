// Package alerts implements the Error Registry: a bounded stream of Error
// Events with a publish-subscribe surface for the front-end, plus
// recovery tracking for the Upstream Client's retry loop and a feature
// degradation tracker.
package alerts

import (
	"sync"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type Category string

const (
	CategoryProcess Category = "process"
	CategoryNetwork Category = "network"
	CategoryConfig  Category = "config"
	CategoryBackend Category = "backend"
	CategoryIPC     Category = "ipc"
	CategorySystem  Category = "system"
)

// Event is one reported error/warning/info occurrence.
type Event struct {
	ID           uint64
	Timestamp    time.Time
	Severity     Severity
	Category     Category
	Message      string
	Details      string
	RecoveryHint string
	Acknowledged bool
}

// Subscriber receives newly reported events. Must not block.
type Subscriber func(Event)

// Registry is the bounded Error Event stream plus recovery/feature state.
type Registry struct {
	mu       sync.Mutex
	capacity int
	nextID   uint64
	events   []Event

	subMu sync.Mutex
	subs  []Subscriber

	recoveries map[string]*Recovery
	features   map[string]string // feature name -> degradation reason; absent = healthy

	now func() time.Time
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 500
	}
	return &Registry{
		capacity:   capacity,
		recoveries: make(map[string]*Recovery),
		features:   make(map[string]string),
		now:        time.Now,
	}
}

// Subscribe registers a listener for future events.
func (r *Registry) Subscribe(s Subscriber) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subs = append(r.subs, s)
}

// Report records an event, evicting the oldest if the ring is full, and
// notifies subscribers.
func (r *Registry) Report(e Event) Event {
	r.mu.Lock()
	r.nextID++
	e.ID = r.nextID
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	r.events = append(r.events, e)
	if len(r.events) > r.capacity {
		r.events = r.events[len(r.events)-r.capacity:]
	}
	r.mu.Unlock()

	r.notify(e)
	return e
}

// Acknowledge marks an event acknowledged by id, if still present.
func (r *Registry) Acknowledge(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == id {
			r.events[i].Acknowledged = true
			return true
		}
	}
	return false
}

// Recent returns a snapshot of currently tracked events, oldest first.
func (r *Registry) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Registry) notify(e Event) {
	r.subMu.Lock()
	subs := make([]Subscriber, len(r.subs))
	copy(subs, r.subs)
	r.subMu.Unlock()

	for _, s := range subs {
		s(e)
	}
}
