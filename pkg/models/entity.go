package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Well known entity snapshot fields.
const (
	FieldStage          = "stage"
	FieldScore          = "score"
	FieldTags           = "tags"
	FieldLastOutboundAt = "last_outbound_at"
	FieldLastReplyAt    = "last_reply_at"
	FieldDealValue      = "deal_value"
)

// Entity types.
const (
	EntityTypeDeal    = "deal"
	EntityTypeContact = "contact"
)

// EntityRef identifies a CRM record.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r EntityRef) String() string {
	return r.Type + ":" + r.ID
}

// EntitySnapshot is a read-only view of a CRM record's fields.
type EntitySnapshot map[string]any

// Lookup resolves a dotted path such as "company.size" or "contacts.0.email".
func (s EntitySnapshot) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = map[string]any(s)

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case EntitySnapshot:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}

			current = node[idx]
		case []string:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}

			current = node[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

// Time reads a timestamp field.
func (s EntitySnapshot) Time(field string) (time.Time, bool) {
	value, ok := s.Lookup(field)
	if !ok {
		return time.Time{}, false
	}

	return ToTime(value)
}

// Float reads a numeric field.
func (s EntitySnapshot) Float(field string) (float64, bool) {
	value, ok := s.Lookup(field)
	if !ok {
		return 0, false
	}

	return ToFloat(value)
}

// Entity is a stored CRM record the automation core mutates.
type Entity struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Type      string         `json:"type"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Ref returns the entity reference.
func (e *Entity) Ref() EntityRef {
	return EntityRef{Type: e.Type, ID: e.ID}
}

// Snapshot returns a shallow copy of the fields with id and type filled in.
func (e *Entity) Snapshot() EntitySnapshot {
	snapshot := make(EntitySnapshot, len(e.Fields)+2)

	for k, v := range e.Fields {
		snapshot[k] = v
	}

	snapshot["id"] = e.ID
	snapshot["type"] = e.Type

	return snapshot
}

// Stage returns the current stage field.
func (e *Entity) Stage() string {
	stage, _ := e.Fields[FieldStage].(string)

	return stage
}

// Tags returns the entity tags.
func (e *Entity) Tags() []string {
	switch v := e.Fields[FieldTags].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))

		for _, item := range v {
			tags = append(tags, fmt.Sprint(item))
		}

		return tags
	default:
		return nil
	}
}

// Task is a follow-up created by an automation.
type Task struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Title      string     `json:"title"`
	Notes      string     `json:"notes,omitempty"`
	Assignee   string     `json:"assignee,omitempty"`
	Priority   string     `json:"priority,omitempty"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Notification is a message raised for a user by an automation.
type Notification struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Channel    string    `json:"channel"`
	Recipient  string    `json:"recipient,omitempty"`
	Title      string    `json:"title,omitempty"`
	Message    string    `json:"message"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToFloat coerces JSON numbers, Go numerics and numeric strings.
func ToFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// ToTime coerces time values and RFC3339 strings.
func ToTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}

		return *v, !v.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)

		return t, err == nil
	default:
		return time.Time{}, false
	}
}
