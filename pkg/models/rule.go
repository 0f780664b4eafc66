// Package models defines the core domain models for CRM rule automation and outreach workflows.
package models

import (
	"errors"
	"time"
)

// RuleStatus represents whether a rule takes part in event evaluation.
type RuleStatus string

const (
	RuleStatusActive RuleStatus = "active"
	RuleStatusPaused RuleStatus = "paused"
)

// IsValid checks if the rule status is one of the known values.
func (s RuleStatus) IsValid() bool {
	return s == RuleStatusActive || s == RuleStatusPaused
}

var (
	ErrRuleNameRequired   = errors.New("rule name is required")
	ErrRuleTenantRequired = errors.New("rule tenant is required")
	ErrInvalidRuleStatus  = errors.New("invalid rule status")
)

// AutomationRule is a tenant-defined trigger + condition + action automation.
type AutomationRule struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"   validate:"required"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Status      RuleStatus     `json:"status"      validate:"required,oneof=active paused"`
	Priority    int            `json:"priority"`
	Trigger     Trigger        `json:"trigger"`
	Action      Action         `json:"action"`
	Conditions  ConditionGroup `json:"conditions"`
	CreatedBy   string         `json:"created_by"`
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsActive reports whether the rule should be considered for incoming events.
func (r *AutomationRule) IsActive() bool {
	return r.Status == RuleStatusActive
}

// Validate checks the rule and its trigger, action and conditions.
func (r *AutomationRule) Validate() error {
	if r.TenantID == "" {
		return ErrRuleTenantRequired
	}

	if r.Name == "" {
		return ErrRuleNameRequired
	}

	if !r.Status.IsValid() {
		return ErrInvalidRuleStatus
	}

	if err := r.Trigger.Validate(); err != nil {
		return err
	}

	if err := r.Action.Validate(); err != nil {
		return err
	}

	return r.Conditions.Validate()
}

// Clone returns a deep copy of the rule.
func (r *AutomationRule) Clone() *AutomationRule {
	clone := *r
	clone.Trigger = r.Trigger.Clone()
	clone.Action = r.Action.Clone()
	clone.Conditions = r.Conditions.Clone()

	return &clone
}

// RuleVersion is an immutable snapshot of a rule taken every time the rule changes.
type RuleVersion struct {
	RuleID    string          `json:"rule_id"`
	Version   int             `json:"version"`
	Snapshot  *AutomationRule `json:"snapshot"`
	Note      string          `json:"note,omitempty"`
	CreatedBy string          `json:"created_by,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
