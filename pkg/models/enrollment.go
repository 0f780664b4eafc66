package models

import "time"

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusStopped   EnrollmentStatus = "stopped"
)

// Enrollment outcomes set by the interpreter.
const (
	OutcomeCompleted     = "completed"
	OutcomeTimedOut      = "timed_out"
	OutcomeCycleDetected = "cycle_detected"
	OutcomeNodeFailed    = "node_failed"
	OutcomeManualStop    = "stopped_manually"
	OutcomeMissingNode   = "missing_node"
	OutcomeMissingFlow   = "workflow_missing"
)

// MaxObservedEvents caps the per-enrollment event buffer.
const MaxObservedEvents = 50

// WorkflowEnrollment is an entity's live position within a workflow graph.
type WorkflowEnrollment struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	WorkflowID      string           `json:"workflow_id"`
	WorkflowVersion int              `json:"workflow_version"`
	EntityType      string           `json:"entity_type"`
	EntityID        string           `json:"entity_id"`
	CurrentNodeID   string           `json:"current_node_id"`
	EnteredAt       time.Time        `json:"entered_at"`
	Status          EnrollmentStatus `json:"status"`
	Outcome         string           `json:"outcome,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	History         []NodeVisit      `json:"history,omitempty"`
	ObservedEvents  []ObservedEvent  `json:"observed_events,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NodeVisit is one entry in the enrollment's path through the graph.
type NodeVisit struct {
	NodeID    string    `json:"node_id"`
	NodeType  NodeType  `json:"node_type"`
	Handle    string    `json:"handle,omitempty"`
	EnteredAt time.Time `json:"entered_at"`
	Error     string    `json:"error,omitempty"`
}

// ObservedEvent is an event seen for the enrolled entity while the enrollment was active.
type ObservedEvent struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// IsActive reports whether the interpreter may still move the enrollment.
func (e *WorkflowEnrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}

// Target returns the enrolled entity reference.
func (e *WorkflowEnrollment) Target() EntityRef {
	return EntityRef{Type: e.EntityType, ID: e.EntityID}
}

// RecordEvent appends an observed event, dropping the oldest beyond MaxObservedEvents.
func (e *WorkflowEnrollment) RecordEvent(event ObservedEvent) {
	e.ObservedEvents = append(e.ObservedEvents, event)

	if overflow := len(e.ObservedEvents) - MaxObservedEvents; overflow > 0 {
		e.ObservedEvents = append([]ObservedEvent(nil), e.ObservedEvents[overflow:]...)
	}
}

// ObservedSince reports whether an event of eventType was observed at or after since.
func (e *WorkflowEnrollment) ObservedSince(eventType EventType, since time.Time) bool {
	for _, observed := range e.ObservedEvents {
		if observed.Type == eventType && !observed.OccurredAt.Before(since) {
			return true
		}
	}

	return false
}
