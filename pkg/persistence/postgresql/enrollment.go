package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// EnrollmentRepository handles workflow enrollment operations.
type EnrollmentRepository struct {
	store
}

func (r *EnrollmentRepository) Save(ctx context.Context, enrollment *models.WorkflowEnrollment) error {
	stamp(&enrollment.CreatedAt, &enrollment.UpdatedAt)

	data, err := json.Marshal(enrollment)
	if err != nil {
		return persistence.NewRecordError("Save", "enrollment", enrollment.TenantID, enrollment.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_enrollments (tenant_id, id, workflow_id, entity_type, entity_id, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`,
		enrollment.TenantID,
		enrollment.ID,
		enrollment.WorkflowID,
		enrollment.EntityType,
		enrollment.EntityID,
		enrollment.Status,
		data,
		enrollment.CreatedAt,
		enrollment.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", "enrollment", enrollment.TenantID, enrollment.ID, err)
	}

	return nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, tenantID, id string) (*models.WorkflowEnrollment, error) {
	enrollment, found, err := getDocument[models.WorkflowEnrollment](ctx, r.store,
		"SELECT data FROM workflow_enrollments WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "enrollment", tenantID, id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "enrollment", tenantID, id, persistence.ErrEnrollmentNotFound)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) List(ctx context.Context, opts persistence.ListEnrollmentsOptions) ([]*models.WorkflowEnrollment, error) {
	var (
		where []string
		args  []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if opts.TenantID != "" {
		add("tenant_id", opts.TenantID)
	}

	if opts.WorkflowID != "" {
		add("workflow_id", opts.WorkflowID)
	}

	if opts.EntityType != "" {
		add("entity_type", opts.EntityType)
	}

	if opts.EntityID != "" {
		add("entity_id", opts.EntityID)
	}

	if opts.Status != nil {
		add("status", *opts.Status)
	}

	query := "SELECT data FROM workflow_enrollments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	return queryDocuments[models.WorkflowEnrollment](ctx, r.store, query+" ORDER BY created_at, id", args...)
}

func (r *EnrollmentRepository) ListActive(ctx context.Context, tenantID string) ([]*models.WorkflowEnrollment, error) {
	active := models.EnrollmentStatusActive

	return r.List(ctx, persistence.ListEnrollmentsOptions{TenantID: tenantID, Status: &active})
}
