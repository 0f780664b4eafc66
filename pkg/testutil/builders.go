// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestRule creates an active stage_entered -> create_task rule that can be overridden.
func CreateTestRule(tenantID string, overrides ...func(*models.AutomationRule)) *models.AutomationRule {
	trigger, err := models.NewTrigger(models.StageEnteredConfig{ToStage: "proposal"})
	if err != nil {
		panic(err)
	}

	action, err := models.NewAction(models.CreateTaskConfig{Title: "Send proposal", DueInDays: 2})
	if err != nil {
		panic(err)
	}

	rule := &models.AutomationRule{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      "Test Rule",
		Status:    models.RuleStatusActive,
		Priority:  1,
		Trigger:   trigger,
		Action:    action,
		CreatedBy: "test-user",
		Version:   1,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, override := range overrides {
		override(rule)
	}

	return rule
}

// WithTrigger replaces the rule trigger.
func WithTrigger(config models.TriggerConfig) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		trigger, err := models.NewTrigger(config)
		if err != nil {
			panic(err)
		}

		r.Trigger = trigger
	}
}

// WithAction replaces the rule action.
func WithAction(config models.ActionConfig) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		action, err := models.NewAction(config)
		if err != nil {
			panic(err)
		}

		r.Action = action
	}
}

// WithConditions sets the rule condition group.
func WithConditions(group models.ConditionGroup) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.Conditions = group
	}
}

// WithName sets the rule name.
func WithName(name string) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.Name = name
	}
}

// WithPriority sets the rule priority.
func WithPriority(priority int) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.Priority = priority
	}
}

// WithStatus sets the rule status.
func WithStatus(status models.RuleStatus) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.Status = status
	}
}

// WithID sets the rule ID.
func WithID(id string) func(*models.AutomationRule) {
	return func(r *models.AutomationRule) {
		r.ID = id
	}
}

// CreateTestWorkflow creates an executable send -> wait 2 days -> stop workflow.
func CreateTestWorkflow(tenantID, workflowID string) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		Name:        "Test Workflow",
		Version:     1,
		EntryNodeID: "send",
		Nodes: []*models.WorkflowNode{
			CreateTestNode("send", models.NodeTypeSend, map[string]any{"subject": "Hello", "body": "Hi {{ .entity.name }}"}, "wait"),
			CreateTestNode("wait", models.NodeTypeWait, map[string]any{"mode": "duration", "amount": 2, "unit": "days"}, "stop"),
			CreateTestNode("stop", models.NodeTypeStop, map[string]any{"outcome": "done"}, ""),
		},
	}
}

// CreateTestNode creates a workflow node with an optional default edge.
func CreateTestNode(id string, nodeType models.NodeType, config map[string]any, next string) *models.WorkflowNode {
	node := &models.WorkflowNode{
		NodeID: id,
		Type:   nodeType,
		Label:  string(nodeType) + " " + id,
		Config: config,
	}

	if next != "" {
		node.Edges = map[string]string{models.EdgeDefault: next}
	}

	return node
}

// CreateTestEntity creates a CRM record with the given fields.
func CreateTestEntity(tenantID, entityType, id string, fields map[string]any) *models.Entity {
	if fields == nil {
		fields = map[string]any{}
	}

	return &models.Entity{
		ID:       id,
		TenantID: tenantID,
		Type:     entityType,
		Fields:   fields,
	}
}
