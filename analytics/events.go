package analytics

import "go.uber.org/zap"

// EventKind identifies an analytics event.
type EventKind int

const (
	// EventQueryExecuted follows the storage of a recorded execution.
	EventQueryExecuted EventKind = iota + 1
	// EventSlowQuery marks an execution above the slow threshold.
	EventSlowQuery
)

func (k EventKind) String() string {
	switch k {
	case EventQueryExecuted:
		return "query.executed"
	case EventSlowQuery:
		return "query.slow"
	default:
		return "unknown"
	}
}

// Event carries the metrics that triggered it.
type Event struct {
	Kind    EventKind
	Metrics QueryMetrics
}

const eventBuffer = 64

func (c *Collector) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("analytics event dropped", zap.Stringer("kind", ev.Kind))
	}
}
