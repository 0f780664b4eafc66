package services

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/graph"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	enrolled []models.EntityRef
	stopErr  error
}

func (f *fakeEngine) Enroll(_ context.Context, tenantID, workflowID string, target models.EntityRef) (*models.WorkflowEnrollment, error) {
	f.enrolled = append(f.enrolled, target)

	return &models.WorkflowEnrollment{ID: "enr-1", TenantID: tenantID, WorkflowID: workflowID, EntityType: target.Type, EntityID: target.ID, Status: models.EnrollmentStatusActive}, nil
}

func (f *fakeEngine) Stop(_ context.Context, tenantID, enrollmentID string) (*models.WorkflowEnrollment, error) {
	if f.stopErr != nil {
		return nil, f.stopErr
	}

	return &models.WorkflowEnrollment{ID: enrollmentID, TenantID: tenantID, Status: models.EnrollmentStatusStopped, Outcome: models.OutcomeManualStop}, nil
}

func newWorkflowService(t *testing.T, engine EnrollmentEngine) *Workflow {
	t.Helper()

	return NewWorkflow(slog.New(slog.DiscardHandler), file.NewPersistence(t.TempDir()), engine, clock.NewFake(serviceNow))
}

func TestNewWorkflow(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	service := NewWorkflow(slog.New(slog.DiscardHandler), p, &fakeEngine{}, clock.New())

	assert.NotNil(t, service)
	assert.Equal(t, p, service.persistence)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestWorkflow_CreateUpdateDelete(t *testing.T) {
	service := newWorkflowService(t, &fakeEngine{})

	created, err := service.Create(t.Context(), "acme", testutil.CreateTestWorkflow("", ""))
	require.NoError(t, err)
	assert.NotEmpty(t, created.WorkflowID)
	assert.Equal(t, "acme", created.TenantID)
	assert.Equal(t, 1, created.Version)

	update := testutil.CreateTestWorkflow("", "")
	update.Name = "Renamed"

	updated, err := service.Update(t.Context(), "acme", created.WorkflowID, update)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, serviceNow, updated.CreatedAt)

	fetched, err := service.FetchByID(t.Context(), "acme", created.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fetched.Name)

	listed, err := service.ListWorkflows(t.Context(), "acme")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, service.Delete(t.Context(), "acme", created.WorkflowID))

	_, err = service.FetchByID(t.Context(), "acme", created.WorkflowID)
	assert.True(t, IsNotFoundError(err))
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflow_CreateRejectsNonExecutableGraph(t *testing.T) {
	service := newWorkflowService(t, &fakeEngine{})

	tests := []struct {
		name   string
		mutate func(*models.WorkflowDefinition)
	}{
		{"missing name", func(w *models.WorkflowDefinition) { w.Name = "" }},
		{"unknown entry", func(w *models.WorkflowDefinition) { w.EntryNodeID = "nope" }},
		{"dangling edge", func(w *models.WorkflowDefinition) { w.Nodes[0].Edges = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := testutil.CreateTestWorkflow("", "")
			tt.mutate(workflow)

			_, err := service.Create(t.Context(), "acme", workflow)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestWorkflow_Enrollments(t *testing.T) {
	engine := &fakeEngine{}
	service := newWorkflowService(t, engine)

	enrollment, err := service.Enroll(t.Context(), "acme", "wf-1", models.EntityRef{Type: "contact", ID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Len(t, engine.enrolled, 1)

	_, err = service.Enroll(t.Context(), "acme", "wf-1", models.EntityRef{})
	assert.True(t, IsValidationError(err))

	stopped, err := service.StopEnrollment(t.Context(), "acme", "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeManualStop, stopped.Outcome)

	engine.stopErr = fmt.Errorf("%w: enr-1 is completed", graph.ErrEnrollmentNotActive)
	_, err = service.StopEnrollment(t.Context(), "acme", "enr-1")
	assert.True(t, IsConflictError(err))

	_, err = service.ListEnrollments(t.Context(), persistence.ListEnrollmentsOptions{})
	assert.ErrorIs(t, err, ErrEmptyTenantID)
}
