package models

import (
	"errors"
	"time"
)

// EventType is the class of an inbound CRM event.
type EventType string

const (
	EventEmailOpened      EventType = "email_opened"
	EventEmailReplied     EventType = "email_replied"
	EventEmailSent        EventType = "email_sent"
	EventMeetingHeld      EventType = "meeting_held"
	EventStageChanged     EventType = "stage_changed"
	EventDealValueChanged EventType = "deal_value_changed"
	EventScheduleTick     EventType = "schedule_tick"
)

// Payload keys understood by the trigger matcher.
const (
	PayloadFromStage         = "from_stage"
	PayloadToStage           = "to_stage"
	PayloadDealValue         = "deal_value"
	PayloadPreviousDealValue = "previous_deal_value"
	PayloadEntity            = "entity"
	PayloadPreviousTickAt    = "previous_tick_at"
)

var (
	ErrEventTypeRequired   = errors.New("event type is required")
	ErrEventTenantRequired = errors.New("event tenant is required")
	ErrEventEntityRequired = errors.New("event entity is required")
)

// CRMEvent is an inbound event produced by entity mutation paths.
type CRMEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"       validate:"required"`
	TenantID   string         `json:"tenantId"   validate:"required"`
	EntityID   string         `json:"entityId"   validate:"required"`
	EntityType string         `json:"entityType" validate:"required"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Validate checks the envelope fields every event needs.
func (e *CRMEvent) Validate() error {
	if e.Type == "" {
		return ErrEventTypeRequired
	}

	if e.TenantID == "" {
		return ErrEventTenantRequired
	}

	if e.EntityID == "" || e.EntityType == "" {
		return ErrEventEntityRequired
	}

	return nil
}

// Target returns the entity the event refers to.
func (e *CRMEvent) Target() EntityRef {
	return EntityRef{Type: e.EntityType, ID: e.EntityID}
}

// ToStage returns the destination stage of a stage transition.
func (e *CRMEvent) ToStage() string {
	return e.payloadString(PayloadToStage)
}

// FromStage returns the origin stage of a stage transition.
func (e *CRMEvent) FromStage() string {
	return e.payloadString(PayloadFromStage)
}

// DealValue returns the current deal value carried by the event.
func (e *CRMEvent) DealValue() (float64, bool) {
	return ToFloat(e.Payload[PayloadDealValue])
}

// PreviousDealValue returns the deal value before the change.
func (e *CRMEvent) PreviousDealValue() (float64, bool) {
	return ToFloat(e.Payload[PayloadPreviousDealValue])
}

// Snapshot returns the entity snapshot embedded in the payload.
func (e *CRMEvent) Snapshot() EntitySnapshot {
	switch v := e.Payload[PayloadEntity].(type) {
	case EntitySnapshot:
		return v
	case map[string]any:
		return EntitySnapshot(v)
	default:
		return EntitySnapshot{}
	}
}

// PreviousTickAt returns the previous sweep time carried by schedule ticks.
func (e *CRMEvent) PreviousTickAt() (time.Time, bool) {
	return ToTime(e.Payload[PayloadPreviousTickAt])
}

// WithPayload sets a payload key, allocating the map when needed.
func (e *CRMEvent) WithPayload(key string, value any) *CRMEvent {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}

	e.Payload[key] = value

	return e
}

func (e *CRMEvent) payloadString(key string) string {
	s, _ := e.Payload[key].(string)

	return s
}
