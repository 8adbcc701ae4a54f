package scheduler

import (
	"fmt"
	"time"

	"acolyte/internal/logging"
)

// EventKind classifies lifecycle notifications.
type EventKind int

const (
	EventImperativeAdded EventKind = iota
	EventImperativeRemoved
	EventImperativeCompleted
	EventImpulseStarted
	EventImpulseEnded
	EventReactionStarted
	EventReactionEnded
	EventSchedulerStopped
)

func (k EventKind) String() string {
	switch k {
	case EventImperativeAdded:
		return "imperative_added"
	case EventImperativeRemoved:
		return "imperative_removed"
	case EventImperativeCompleted:
		return "imperative_completed"
	case EventImpulseStarted:
		return "impulse_started"
	case EventImpulseEnded:
		return "impulse_ended"
	case EventReactionStarted:
		return "reaction_started"
	case EventReactionEnded:
		return "reaction_ended"
	case EventSchedulerStopped:
		return "scheduler_stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is a lifecycle notification. Events are for diagnostics and display;
// nothing in the scheduler consumes them for control decisions.
type Event struct {
	Kind       EventKind
	Beat       uint64
	Imperative string
	Impulse    string
	Priority   string
	Reaction   string // reaction id
	Aborted    bool
	Detail     string
	At         time.Time
}

func (e Event) String() string {
	s := fmt.Sprintf("[%d] %s", e.Beat, e.Kind)
	if e.Imperative != "" {
		s += " imperative=" + e.Imperative
	}
	if e.Impulse != "" {
		s += " impulse=" + e.Impulse
	}
	if e.Kind == EventReactionEnded || e.Kind == EventImpulseEnded {
		s += fmt.Sprintf(" aborted=%t", e.Aborted)
	}
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// Listener receives lifecycle notifications after the beat that produced
// them has released the scheduler lock. Listeners may call back into the
// scheduler.
type Listener interface {
	OnEvent(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

func dispatch(listeners []Listener, events []Event) {
	for _, e := range events {
		for _, l := range listeners {
			deliver(l, e)
		}
	}
}

func deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.SchedulerError("listener panicked on %s: %v", e.Kind, r)
		}
	}()
	l.OnEvent(e)
}
