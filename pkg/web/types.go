// Package web provides HTTP request and response types for the automation API.
package web

import (
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/templates"
)

// Headers identifying the caller. Authentication happens upstream.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// RuleRequest is the request body for creating or updating a rule.
type RuleRequest struct {
	Name        string                `json:"name"                validate:"required,min=3"`
	Description string                `json:"description"`
	Status      models.RuleStatus     `json:"status,omitempty"    validate:"omitempty,oneof=active paused"`
	Priority    int                   `json:"priority"`
	Trigger     models.Trigger        `json:"trigger"`
	Action      models.Action         `json:"action"`
	Conditions  models.ConditionGroup `json:"conditions"`
	// Note is stored with the version entry an update creates.
	Note string `json:"note,omitempty"`
}

// ToModel builds the rule the request describes for the tenant.
func (r *RuleRequest) ToModel(tenantID string) *models.AutomationRule {
	return &models.AutomationRule{
		TenantID:    tenantID,
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
		Trigger:     r.Trigger,
		Action:      r.Action,
		Conditions:  r.Conditions,
	}
}

// RollbackRequest selects the version a rule or template returns to.
type RollbackRequest struct {
	Version int `json:"version" validate:"required,min=1"`
}

// InstallTemplateRequest customises the rule created from a template.
type InstallTemplateRequest struct {
	Name     string            `json:"name,omitempty"     validate:"omitempty,min=3"`
	Priority *int              `json:"priority,omitempty"`
	Status   models.RuleStatus `json:"status,omitempty"   validate:"omitempty,oneof=active paused"`
}

func (r *InstallTemplateRequest) overrides() templates.Overrides {
	return templates.Overrides{Name: r.Name, Priority: r.Priority, Status: r.Status}
}

// SaveAsTemplateRequest turns an existing rule into a private template.
type SaveAsTemplateRequest struct {
	RuleID   string   `json:"rule_id"  validate:"required"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

// TemplateUpdateRequest is the request body for revising a private template.
type TemplateUpdateRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	Category    string                `json:"category"`
	Trigger     models.Trigger        `json:"trigger"`
	Action      models.Action         `json:"action"`
	Conditions  models.ConditionGroup `json:"conditions"`
	Priority    int                   `json:"priority"`
	Tags        []string              `json:"tags,omitempty"`
	Note        string                `json:"note,omitempty"`
}

func (r *TemplateUpdateRequest) definition() templates.Definition {
	return templates.Definition{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Trigger:     r.Trigger,
		Action:      r.Action,
		Conditions:  r.Conditions,
		Priority:    r.Priority,
		Tags:        r.Tags,
	}
}

// RateRequest carries a 1 to 5 star rating.
type RateRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

// EnrollRequest names the entity placed into a workflow.
type EnrollRequest struct {
	EntityType string `json:"entity_type" validate:"required"`
	EntityID   string `json:"entity_id"   validate:"required"`
}

// EventRequest is an inbound CRM event. The tenant comes from the request header.
type EventRequest struct {
	ID         string           `json:"id,omitempty"`
	Type       models.EventType `json:"type"       validate:"required"`
	EntityType string           `json:"entityType" validate:"required"`
	EntityID   string           `json:"entityId"   validate:"required"`
	Payload    map[string]any   `json:"payload,omitempty"`
}

// ToModel builds the event for the tenant.
func (r *EventRequest) ToModel(tenantID string) *models.CRMEvent {
	return &models.CRMEvent{
		ID:         r.ID,
		Type:       r.Type,
		TenantID:   tenantID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Payload:    r.Payload,
	}
}
