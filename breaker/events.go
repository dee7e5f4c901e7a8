package breaker

import "time"

// EventKind identifies what happened to the breaker.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventHalfOpened
	EventClosed
	EventHealthCheckRequested
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventHalfOpened:
		return "half_opened"
	case EventClosed:
		return "closed"
	case EventHealthCheckRequested:
		return "health_check_requested"
	default:
		return "unknown"
	}
}

// Event is published on the breaker's event channel.
type Event struct {
	Kind     EventKind
	Breaker  string
	From     State
	To       State
	Failures int
	At       time.Time
}

const eventBuffer = 64

// emit never blocks; events are dropped when nobody drains the channel.
func (cb *CircuitBreaker) emit(ev Event) {
	select {
	case cb.events <- ev:
	default:
	}
}
