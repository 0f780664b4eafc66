package models

import "time"

// ExecutionStatus is the outcome of a single matched rule for one event.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// IsValid checks if the execution status is one of the known values.
func (s ExecutionStatus) IsValid() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusSkipped
}

// RuleExecution records what happened when a matched rule was dispatched for an event.
// Records are immutable once appended.
type RuleExecution struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	RuleID     string          `json:"rule_id"`
	RuleName   string          `json:"rule_name,omitempty"`
	EventID    string          `json:"event_id"`
	EventType  EventType       `json:"event_type,omitempty"`
	Sequence   int             `json:"sequence"`
	ExecutedAt time.Time       `json:"executed_at"`
	Status     ExecutionStatus `json:"status"`
	ActionType ActionType      `json:"action_type,omitempty"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Detail     string          `json:"detail,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}
