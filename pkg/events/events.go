// Package events defines the messages exchanged over the event bus between the API,
// the worker and the scheduler.
package events

import (
	"errors"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every dealflow bus message; EventTypeMetadataKey selects the decoder.
const Topic = "dealflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	CRMEventReceivedEvent      EventType = "crm.event.received"
	RuleExecutedEvent          EventType = "rule.executed"
	NotificationRequestedEvent EventType = "notification.requested"
	EmailSendRequestedEvent    EventType = "email.send_requested"
	EnrollmentFinishedEvent    EventType = "enrollment.finished"
)

var ErrMissingCRMEvent = errors.New("crm event is required")

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

// CRMEventReceived wraps an inbound CRM event accepted by the API.
type CRMEventReceived struct {
	BaseEvent

	Event *models.CRMEvent `json:"event"`
}

func NewCRMEventReceived(event *models.CRMEvent) *CRMEventReceived {
	return &CRMEventReceived{
		BaseEvent: NewBaseEvent(CRMEventReceivedEvent, event.TenantID),
		Event:     event,
	}
}

func (e CRMEventReceived) GetType() EventType {
	return CRMEventReceivedEvent
}

func (e *CRMEventReceived) Validate() error {
	if e.Event == nil {
		return ErrMissingCRMEvent
	}

	return e.Event.Validate()
}

// RuleExecuted is published once per persisted RuleExecution.
type RuleExecuted struct {
	BaseEvent

	Execution *models.RuleExecution `json:"execution"`
}

func NewRuleExecuted(execution *models.RuleExecution) *RuleExecuted {
	return &RuleExecuted{
		BaseEvent: NewBaseEvent(RuleExecutedEvent, execution.TenantID),
		Execution: execution,
	}
}

func (e RuleExecuted) GetType() EventType {
	return RuleExecutedEvent
}

// NotificationRequested hands a notification to the delivery side.
type NotificationRequested struct {
	BaseEvent

	Notification *models.Notification `json:"notification"`
}

func NewNotificationRequested(notification *models.Notification) *NotificationRequested {
	return &NotificationRequested{
		BaseEvent:    NewBaseEvent(NotificationRequestedEvent, notification.TenantID),
		Notification: notification,
	}
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

// EmailSendRequested asks the mail integration to deliver an outreach email.
type EmailSendRequested struct {
	BaseEvent

	EntityType   string `json:"entity_type"`
	EntityID     string `json:"entity_id"`
	Subject      string `json:"subject"`
	Body         string `json:"body,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
}

func (e EmailSendRequested) GetType() EventType {
	return EmailSendRequestedEvent
}

// EnrollmentFinished is published when an enrollment completes or stops.
type EnrollmentFinished struct {
	BaseEvent

	EnrollmentID string                  `json:"enrollment_id"`
	WorkflowID   string                  `json:"workflow_id"`
	EntityType   string                  `json:"entity_type"`
	EntityID     string                  `json:"entity_id"`
	Status       models.EnrollmentStatus `json:"status"`
	Outcome      string                  `json:"outcome"`
}

func NewEnrollmentFinished(enrollment *models.WorkflowEnrollment) *EnrollmentFinished {
	return &EnrollmentFinished{
		BaseEvent:    NewBaseEvent(EnrollmentFinishedEvent, enrollment.TenantID),
		EnrollmentID: enrollment.ID,
		WorkflowID:   enrollment.WorkflowID,
		EntityType:   enrollment.EntityType,
		EntityID:     enrollment.EntityID,
		Status:       enrollment.Status,
		Outcome:      enrollment.Outcome,
	}
}

func (e EnrollmentFinished) GetType() EventType {
	return EnrollmentFinishedEvent
}
