package file

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// EnrollmentRepository stores enrollments under enrollments/<tenant>/<id>.json.
type EnrollmentRepository struct {
	p *Persistence
}

func (er *EnrollmentRepository) Save(_ context.Context, enrollment *models.WorkflowEnrollment) error {
	path, err := er.p.path("enrollments", enrollment.TenantID, enrollment.ID+".json")
	if err != nil {
		return persistence.NewRecordError("Save", "enrollment", enrollment.TenantID, enrollment.ID, err)
	}

	stamp(&enrollment.CreatedAt, &enrollment.UpdatedAt)

	er.p.mu.Lock()
	defer er.p.mu.Unlock()

	return writeJSON(path, enrollment)
}

func (er *EnrollmentRepository) GetByID(_ context.Context, tenantID, id string) (*models.WorkflowEnrollment, error) {
	path, err := er.p.path("enrollments", tenantID, id+".json")
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "enrollment", tenantID, id, persistence.ErrEnrollmentNotFound)
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	var enrollment models.WorkflowEnrollment

	found, err := readJSON(path, &enrollment)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "enrollment", tenantID, id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "enrollment", tenantID, id, persistence.ErrEnrollmentNotFound)
	}

	return &enrollment, nil
}

func (er *EnrollmentRepository) tenant(tenantID string) ([]*models.WorkflowEnrollment, error) {
	dir, err := er.p.path("enrollments", tenantID)
	if err != nil {
		return nil, err
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	return listJSON[models.WorkflowEnrollment](dir)
}

func (er *EnrollmentRepository) List(_ context.Context, opts persistence.ListEnrollmentsOptions) ([]*models.WorkflowEnrollment, error) {
	enrollments, err := er.tenant(opts.TenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.WorkflowEnrollment, 0, len(enrollments))

	for _, enrollment := range enrollments {
		switch {
		case opts.WorkflowID != "" && enrollment.WorkflowID != opts.WorkflowID:
		case opts.EntityType != "" && enrollment.EntityType != opts.EntityType:
		case opts.EntityID != "" && enrollment.EntityID != opts.EntityID:
		case opts.Status != nil && enrollment.Status != *opts.Status:
		default:
			filtered = append(filtered, enrollment)
		}
	}

	sortEnrollments(filtered)

	return filtered, nil
}

func (er *EnrollmentRepository) ListActive(ctx context.Context, tenantID string) ([]*models.WorkflowEnrollment, error) {
	tenants := []string{tenantID}

	if tenantID == "" {
		var err error

		tenants, err = subdirs(filepath.Join(er.p.root, "enrollments"))
		if err != nil {
			return nil, err
		}
	}

	active := models.EnrollmentStatusActive

	var result []*models.WorkflowEnrollment

	for _, tenant := range tenants {
		enrollments, err := er.List(ctx, persistence.ListEnrollmentsOptions{TenantID: tenant, Status: &active})
		if err != nil {
			return nil, err
		}

		result = append(result, enrollments...)
	}

	sortEnrollments(result)

	return result, nil
}

func sortEnrollments(enrollments []*models.WorkflowEnrollment) {
	sort.SliceStable(enrollments, func(i, j int) bool {
		if !enrollments[i].CreatedAt.Equal(enrollments[j].CreatedAt) {
			return enrollments[i].CreatedAt.Before(enrollments[j].CreatedAt)
		}

		return enrollments[i].ID < enrollments[j].ID
	})
}
