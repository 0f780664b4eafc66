package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/graph"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// EnrollmentEngine runs enrollments. *graph.Engine implements it.
type EnrollmentEngine interface {
	Enroll(ctx context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error)
	Stop(ctx context.Context, tenantID, enrollmentID string) (*models.WorkflowEnrollment, error)
}

type Workflow struct {
	persistence persistence.Persistence
	engine      EnrollmentEngine
	clock       clock.Clock
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(logger *slog.Logger, p persistence.Persistence, engine EnrollmentEngine, clk clock.Clock) *Workflow {
	return &Workflow{
		persistence: p,
		engine:      engine,
		clock:       clk,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflows lists the tenant's workflow definitions.
func (w *Workflow) ListWorkflows(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return w.persistence.WorkflowRepository().List(ctx, tenantID)
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, tenantID, id)
}

// Create stores a new executable workflow as version 1. A caller supplied workflow_id is kept.
func (w *Workflow) Create(ctx context.Context, tenantID string, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	if workflow.WorkflowID == "" {
		workflow.WorkflowID = uuid.New().String()
	}

	now := w.clock.Now()
	workflow.TenantID = tenantID
	workflow.Name = strings.TrimSpace(workflow.Name)
	workflow.Version = 1
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := validateWorkflow(workflow); err != nil {
		return nil, invalid("CreateWorkflow", ErrInvalidWorkflow, err)
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "workflow created", "tenant_id", tenantID, "workflow_id", workflow.WorkflowID)

	return workflow, nil
}

// Update replaces a workflow graph and bumps its version. Active enrollments continue on
// the new graph from their current node.
func (w *Workflow) Update(ctx context.Context, tenantID, workflowID string, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.WorkflowID = workflowID
	workflow.TenantID = tenantID
	workflow.Name = strings.TrimSpace(workflow.Name)
	workflow.Version = existing.Version + 1
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.clock.Now()

	if err := validateWorkflow(workflow); err != nil {
		return nil, invalid("UpdateWorkflow", ErrInvalidWorkflow, err)
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID. Active enrollments stop on their next tick.
func (w *Workflow) Delete(ctx context.Context, tenantID, workflowID string) error {
	err := w.persistence.WorkflowRepository().Delete(ctx, tenantID, workflowID)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "workflow deleted", "tenant_id", tenantID, "workflow_id", workflowID)

	return nil
}

// Enroll places an entity at the entry node of a workflow.
func (w *Workflow) Enroll(ctx context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error) {
	if target.Type == "" || target.ID == "" {
		return nil, NewValidationError("Enroll", "entity_required", "entity type and id are required", ErrInvalidRequest)
	}

	enrollment, err := w.engine.Enroll(ctx, tenantID, workflowID, target)
	if err != nil {
		if errors.Is(err, models.ErrWorkflowNotExecutable) {
			return nil, invalid("Enroll", ErrInvalidWorkflow, err)
		}

		return nil, err
	}

	return enrollment, nil
}

// ListEnrollments lists enrollments of the tenant.
func (w *Workflow) ListEnrollments(ctx context.Context, opts persistence.ListEnrollmentsOptions) ([]*models.WorkflowEnrollment, error) {
	if opts.TenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return w.persistence.EnrollmentRepository().List(ctx, opts)
}

// FetchEnrollment retrieves one enrollment of the tenant.
func (w *Workflow) FetchEnrollment(ctx context.Context, tenantID, id string) (*models.WorkflowEnrollment, error) {
	return w.persistence.EnrollmentRepository().GetByID(ctx, tenantID, id)
}

// StopEnrollment ends an active enrollment by hand.
func (w *Workflow) StopEnrollment(ctx context.Context, tenantID, id string) (*models.WorkflowEnrollment, error) {
	enrollment, err := w.engine.Stop(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, graph.ErrEnrollmentNotActive) {
			return nil, fmt.Errorf("%w: %w", ErrEnrollmentFinished, err)
		}

		return nil, err
	}

	return enrollment, nil
}

func validateWorkflow(workflow *models.WorkflowDefinition) error {
	if workflow.Name == "" {
		return errors.New("workflow name is required")
	}

	return workflow.ValidateExecutable()
}
