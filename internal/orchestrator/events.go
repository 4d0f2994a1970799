package orchestrator

import "time"

// EventType distinguishes the kinds of progress events the orchestrator
// reports to a UI consumer.
type EventType string

const (
	// EventAgentStarted reports a sub-agent command was popped off the
	// queue and dispatched.
	EventAgentStarted EventType = "agent_started"
	// EventAgentFinished reports a sub-agent invocation returned a result.
	EventAgentFinished EventType = "agent_finished"
	// EventKickback reports the routing table sent control back to the
	// Planner with a synthesized kickback prompt.
	EventKickback EventType = "kickback"
	// EventTerminated reports the routing table found nothing further to
	// do and the loop stopped.
	EventTerminated EventType = "terminated"
)

// Event is one entry on the orchestrator's public event stream, carrying
// enough context for a UI to render a timeline without re-querying the
// store.
type Event struct {
	Type      EventType
	Agent     CommandType
	Message   string
	Timestamp time.Time
}

// EventEmitter is a thread-safe, drop-on-full fan-out of Events to a
// single UI subscriber. Grounded on the teacher's EventEmitter
// (buffered channel, non-blocking Emit, explicit Close), narrowed from
// OrchestratorEvent's large task/merge/cost-tracking payload down to the
// orchestrator's own Event shape.
type EventEmitter struct {
	events chan Event
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event to subscribers. If the channel is full the event is
// dropped rather than blocking the control loop.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
	default:
	}
}

// Events returns the read side of the event stream.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the event stream. Must be called at most once.
func (e *EventEmitter) Close() {
	close(e.events)
}
