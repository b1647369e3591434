package engine

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType identifies an engine event.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventStageStarted  EventType = "stage_started"
	EventTaskStarted   EventType = "task_started"
	EventTaskFinished  EventType = "task_finished"
	EventAgentSpawned  EventType = "agent_spawned"
	EventRunFinished   EventType = "run_finished"
	EventRunFailed     EventType = "run_failed"
	EventInfoRequested EventType = "info_requested"
)

// Event is one observable engine occurrence.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter fans engine events out to a single subscriber channel. It is
// thread-safe and never blocks the engine: when the subscriber falls
// behind, events are dropped after a short grace period.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *zap.Logger
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event. If the channel is full it retries briefly, then
// drops the event.
func (e *Emitter) Emit(event Event) {
	event.Timestamp = time.Now()

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropping events",
				zap.Uint64("total_dropped", count),
				zap.String("type", string(event.Type)))
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the subscriber channel. Call only after every producer
// has stopped.
func (e *Emitter) Close() {
	close(e.events)
}
