package coordinator

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType is the kind of coordinator event.
type EventType string

const (
	// EventWorkflowStarted indicates a workflow began executing.
	EventWorkflowStarted EventType = "workflow_started"
	// EventWorkflowDone indicates a workflow reached a terminal state.
	EventWorkflowDone EventType = "workflow_done"
	// EventTaskQueued indicates a task's dependencies are satisfied.
	EventTaskQueued EventType = "task_queued"
	// EventTaskStarted indicates a task began executing on a provider.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed after exhausting retries.
	EventTaskFailed EventType = "task_failed"
	// EventTaskSkipped indicates a task was skipped because a dependency
	// edge can never be satisfied.
	EventTaskSkipped EventType = "task_skipped"
	// EventTaskBlocked indicates resources could not be reserved for a task.
	EventTaskBlocked EventType = "task_blocked"
	// EventConflictDetected indicates contention between claims was observed.
	EventConflictDetected EventType = "conflict_detected"
	// EventConflictResolved indicates a conflict reached a terminal state.
	EventConflictResolved EventType = "conflict_resolved"
	// EventProviderFailover indicates a task moved to another provider.
	EventProviderFailover EventType = "provider_failover"
	// EventPlanDegraded indicates a plan finished with optional subtask
	// failures while the task itself stood.
	EventPlanDegraded EventType = "plan_degraded"
	// EventReservationExpired indicates predictive resource holds lapsed
	// and were released back to the pools.
	EventReservationExpired EventType = "reservation_expired"
)

// Event is emitted by the coordinator as scheduling progresses.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// WorkflowID is the related workflow, if applicable.
	WorkflowID string
	// TaskID is the related task, if applicable.
	TaskID string
	// Provider is the related provider, if applicable.
	Provider string
	// ConflictID is the related conflict, if applicable.
	ConflictID string
	// Message provides additional context.
	Message string
	// Error carries failure details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Emitter is a thread-safe, non-blocking event fan-out. A slow subscriber
// loses events rather than stalling the scheduler.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event, stamping the timestamp if unset. If the channel stays
// full past a short grace period the event is dropped.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[coordinator] event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
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

// Close closes the event channel. Call only after all emitters have stopped.
func (e *Emitter) Close() {
	close(e.events)
}
