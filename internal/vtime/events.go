package vtime

import (
	"sort"
	"sync"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
)

// TimeEventKind tags a scheduled virtual-time event.
type TimeEventKind string

const (
	EventStandupDue     TimeEventKind = "standup_due"
	EventReviewDue      TimeEventKind = "review_due"
	EventDeadlineNear   TimeEventKind = "deadline_approaching"
	EventSprintComplete TimeEventKind = "sprint_completed"
	EventEmergencyStop  TimeEventKind = "emergency_stop"
)

// Valid returns true if the kind is a known value.
func (k TimeEventKind) Valid() bool {
	switch k {
	case EventStandupDue, EventReviewDue, EventDeadlineNear, EventSprintComplete, EventEmergencyStop:
		return true
	}
	return false
}

// TimeEvent is a scheduled action on a sprint's virtual clock.
type TimeEvent struct {
	// Kind is the event type.
	Kind TimeEventKind `json:"kind"`
	// SprintID is the sprint the event belongs to.
	SprintID string `json:"sprint_id"`
	// VirtualHour is when the event becomes due.
	VirtualHour float64 `json:"virtual_hour"`
	// Payload is free-form detail for the handler.
	Payload string `json:"payload,omitempty"`
}

// Handler reacts to a due event.
type Handler func(TimeEvent)

// Processor holds per-sprint queues of time events and dispatches them as
// the virtual clock advances.
type Processor struct {
	mu       sync.RWMutex
	queues   map[string][]TimeEvent
	handlers map[TimeEventKind]Handler

	log *logging.Logger
}

// NewProcessor creates an empty event processor.
func NewProcessor(log *logging.Logger) *Processor {
	if log == nil {
		log = logging.Nop()
	}
	return &Processor{
		queues:   make(map[string][]TimeEvent),
		handlers: make(map[TimeEventKind]Handler),
		log:      log,
	}
}

// Handle registers the handler invoked when events of the kind come due.
func (p *Processor) Handle(kind TimeEventKind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// Schedule queues an event. An event structurally identical to one already
// queued is dropped as a duplicate.
func (p *Processor) Schedule(event TimeEvent) error {
	const op = "vtime.Schedule"

	if !event.Kind.Valid() {
		return errs.E(errs.KindInvalidInput, op, "unknown event kind %q", event.Kind)
	}
	if event.SprintID == "" {
		return errs.E(errs.KindInvalidInput, op, "sprint id must be non-empty")
	}
	if event.VirtualHour < 0 {
		return errs.E(errs.KindInvalidInput, op, "virtual hour must be non-negative")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, queued := range p.queues[event.SprintID] {
		if queued == event {
			p.log.Debugf("vtime", "duplicate %s at vhour %.1f dropped", event.Kind, event.VirtualHour)
			return nil
		}
	}
	p.queues[event.SprintID] = append(p.queues[event.SprintID], event)
	return nil
}

// Process dispatches every event due at or before the current virtual hour
// and returns them in due order. Events not yet due stay queued.
func (p *Processor) Process(sprintID string, currentVirtualHours float64) []TimeEvent {
	p.mu.Lock()
	var due, remaining []TimeEvent
	for _, event := range p.queues[sprintID] {
		if event.VirtualHour <= currentVirtualHours {
			due = append(due, event)
		} else {
			remaining = append(remaining, event)
		}
	}
	p.queues[sprintID] = remaining
	handlers := make([]Handler, len(due))
	sort.SliceStable(due, func(i, j int) bool { return due[i].VirtualHour < due[j].VirtualHour })
	for i, event := range due {
		handlers[i] = p.handlers[event.Kind]
	}
	p.mu.Unlock()

	// Handlers run outside the lock so they may schedule follow-up events.
	for i, event := range due {
		if handlers[i] != nil {
			handlers[i](event)
		} else {
			p.log.Debugf("vtime", "no handler for %s, dropped", event.Kind)
		}
	}
	return due
}

// ByKind returns the queued events of one kind for a sprint.
func (p *Processor) ByKind(sprintID string, kind TimeEventKind) []TimeEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []TimeEvent
	for _, event := range p.queues[sprintID] {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

// InRange returns the queued events for a sprint whose due hour falls in
// [from, to].
func (p *Processor) InRange(sprintID string, from, to float64) []TimeEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []TimeEvent
	for _, event := range p.queues[sprintID] {
		if event.VirtualHour >= from && event.VirtualHour <= to {
			out = append(out, event)
		}
	}
	return out
}

// Pending returns how many events are queued for a sprint.
func (p *Processor) Pending(sprintID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.queues[sprintID])
}

// Clear drops every queued event for a sprint.
func (p *Processor) Clear(sprintID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.queues, sprintID)
}
