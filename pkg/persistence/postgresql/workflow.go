package postgresql

import (
	"context"
	"encoding/json"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// WorkflowRepository handles workflow definition operations.
type WorkflowRepository struct {
	store
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	stamp(&workflow.CreatedAt, &workflow.UpdatedAt)

	data, err := json.Marshal(workflow)
	if err != nil {
		return persistence.NewRecordError("Save", "workflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (tenant_id, id, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`, workflow.TenantID, workflow.WorkflowID, workflow.Name, data, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return persistence.NewRecordError("Save", "workflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	workflow, found, err := getDocument[models.WorkflowDefinition](ctx, r.store,
		"SELECT data FROM workflow_definitions WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "workflow", tenantID, id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "workflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	return queryDocuments[models.WorkflowDefinition](ctx, r.store,
		"SELECT data FROM workflow_definitions WHERE tenant_id = $1 ORDER BY name", tenantID)
}

func (r *WorkflowRepository) Delete(ctx context.Context, tenantID, id string) error {
	deleted, err := exec(ctx, r.store, "DELETE FROM workflow_definitions WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return persistence.NewRecordError("Delete", "workflow", tenantID, id, err)
	}

	if !deleted {
		return persistence.NewRecordError("Delete", "workflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
