// Package persistence provides the storage abstraction for rules, executions, templates,
// workflow definitions, enrollments and the CRM records automations act on.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/dealflow/pkg/models"
)

type Persistence interface {
	RuleRepository() RuleRepository
	ExecutionRepository() ExecutionRepository
	TemplateRepository() TemplateRepository
	WorkflowRepository() WorkflowRepository
	EnrollmentRepository() EnrollmentRepository
	EntityRepository() EntityRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListRulesOptions filters, sorts and paginates rules of one tenant.
type ListRulesOptions struct {
	TenantID    string
	Status      *models.RuleStatus
	TriggerType models.TriggerType

	Limit  int
	Offset int

	SortBy    string // created_at, updated_at, name, priority
	SortOrder string // asc, desc
}

type RuleListResult struct {
	Rules       []*models.AutomationRule `json:"rules"`
	TotalCount  int64                    `json:"total_count"`
	HasNextPage bool                     `json:"has_next_page"`
}

type RuleRepository interface {
	Save(ctx context.Context, rule *models.AutomationRule) error
	GetByID(ctx context.Context, tenantID, id string) (*models.AutomationRule, error)
	List(ctx context.Context, opts ListRulesOptions) (*RuleListResult, error)
	// ListActive returns a point-in-time copy of the tenant's active rules.
	ListActive(ctx context.Context, tenantID string) ([]*models.AutomationRule, error)
	Delete(ctx context.Context, tenantID, id string) error

	SaveVersion(ctx context.Context, version *models.RuleVersion) error
	// Versions returns the rule's snapshots ordered by version ascending.
	Versions(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error)

	// ActiveTenants lists tenants owning at least one active rule.
	ActiveTenants(ctx context.Context) ([]string, error)
}

// ExecutionFilter selects execution records. Empty fields do not filter.
type ExecutionFilter struct {
	TenantID   string
	RuleID     string
	EventID    string
	EntityType string
	EntityID   string
	Status     *models.ExecutionStatus

	Limit  int
	Offset int
}

type ExecutionListResult struct {
	Executions  []*models.RuleExecution `json:"executions"`
	TotalCount  int64                   `json:"total_count"`
	HasNextPage bool                    `json:"has_next_page"`
}

type ExecutionRepository interface {
	// Append stores the records of one event in the given order.
	Append(ctx context.Context, executions []*models.RuleExecution) error
	// List returns records newest first; records of the same event keep their sequence order.
	List(ctx context.Context, filter ExecutionFilter) (*ExecutionListResult, error)
	// LatestForEntity returns the newest execution time per rule ID for one entity.
	LatestForEntity(ctx context.Context, tenantID string, entity models.EntityRef) (map[string]time.Time, error)
}

// ListTemplatesOptions selects templates visible to TenantID.
type ListTemplatesOptions struct {
	TenantID string
	Category string
	Tag      string
	Search   string
}

type TemplateRepository interface {
	Save(ctx context.Context, template *models.AutomationTemplate) error
	GetByID(ctx context.Context, id string) (*models.AutomationTemplate, error)
	List(ctx context.Context, opts ListTemplatesOptions) ([]*models.AutomationTemplate, error)
	Delete(ctx context.Context, id string) error
}

type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error)
	List(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// ListEnrollmentsOptions filters enrollments. Empty fields do not filter.
type ListEnrollmentsOptions struct {
	TenantID   string
	WorkflowID string
	EntityType string
	EntityID   string
	Status     *models.EnrollmentStatus
}

type EnrollmentRepository interface {
	Save(ctx context.Context, enrollment *models.WorkflowEnrollment) error
	GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowEnrollment, error)
	List(ctx context.Context, opts ListEnrollmentsOptions) ([]*models.WorkflowEnrollment, error)
	// ListActive returns active enrollments of one tenant, or of every tenant when tenantID is empty.
	ListActive(ctx context.Context, tenantID string) ([]*models.WorkflowEnrollment, error)
}

type EntityRepository interface {
	GetEntity(ctx context.Context, tenantID string, ref models.EntityRef) (*models.Entity, error)
	SaveEntity(ctx context.Context, entity *models.Entity) error
	ListEntities(ctx context.Context, tenantID, entityType string) ([]*models.Entity, error)

	CreateTask(ctx context.Context, task *models.Task) error
	ListTasks(ctx context.Context, tenantID string, ref models.EntityRef) ([]*models.Task, error)

	SaveNotification(ctx context.Context, notification *models.Notification) error
	ListNotifications(ctx context.Context, tenantID string) ([]*models.Notification, error)
}
