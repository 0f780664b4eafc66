package file

import (
	"context"
	"sort"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// WorkflowRepository stores workflow definitions under workflows/<tenant>/<id>.json.
type WorkflowRepository struct {
	p *Persistence
}

func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	path, err := wr.p.path("workflows", workflow.TenantID, workflow.WorkflowID+".json")
	if err != nil {
		return persistence.NewRecordError("Save", "workflow", workflow.TenantID, workflow.WorkflowID, err)
	}

	stamp(&workflow.CreatedAt, &workflow.UpdatedAt)

	wr.p.mu.Lock()
	defer wr.p.mu.Unlock()

	return writeJSON(path, workflow)
}

func (wr *WorkflowRepository) GetByID(_ context.Context, tenantID, id string) (*models.WorkflowDefinition, error) {
	path, err := wr.p.path("workflows", tenantID, id+".json")
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "workflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	wr.p.mu.RLock()
	defer wr.p.mu.RUnlock()

	var workflow models.WorkflowDefinition

	found, err := readJSON(path, &workflow)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "workflow", tenantID, id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "workflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) List(_ context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	dir, err := wr.p.path("workflows", tenantID)
	if err != nil {
		return nil, err
	}

	wr.p.mu.RLock()
	defer wr.p.mu.RUnlock()

	workflows, err := listJSON[models.WorkflowDefinition](dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].Name < workflows[j].Name })

	return workflows, nil
}

func (wr *WorkflowRepository) Delete(_ context.Context, tenantID, id string) error {
	path, err := wr.p.path("workflows", tenantID, id+".json")
	if err != nil {
		return persistence.NewRecordError("Delete", "workflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	wr.p.mu.Lock()
	defer wr.p.mu.Unlock()

	removed, err := removeFile(path)
	if err != nil {
		return persistence.NewRecordError("Delete", "workflow", tenantID, id, err)
	}

	if !removed {
		return persistence.NewRecordError("Delete", "workflow", tenantID, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
