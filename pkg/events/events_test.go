package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRMEventReceived_JSONSerialization(t *testing.T) {
	original := NewCRMEventReceived(&models.CRMEvent{
		ID:         "evt-1",
		Type:       models.EventStageChanged,
		TenantID:   "acme",
		EntityID:   "deal-9",
		EntityType: models.EntityTypeDeal,
		Payload:    map[string]any{"to_stage": "proposal"},
		OccurredAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tenantId":"acme"`)
	assert.Contains(t, string(data), `"type":"crm.event.received"`)

	var decoded CRMEventReceived
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())
	assert.Equal(t, "proposal", decoded.Event.ToStage())
	assert.Equal(t, "acme", decoded.TenantID)
	assert.Equal(t, CRMEventReceivedEvent, decoded.GetType())
}

func TestCRMEventReceived_Validate(t *testing.T) {
	assert.ErrorIs(t, (&CRMEventReceived{}).Validate(), ErrMissingCRMEvent)
	assert.ErrorIs(t, (&CRMEventReceived{Event: &models.CRMEvent{Type: models.EventEmailOpened}}).Validate(), models.ErrEventTenantRequired)
}

func TestNewEnrollmentFinished(t *testing.T) {
	event := NewEnrollmentFinished(&models.WorkflowEnrollment{
		ID:         "enr-1",
		TenantID:   "acme",
		WorkflowID: "wf-1",
		EntityType: models.EntityTypeContact,
		EntityID:   "c-1",
		Status:     models.EnrollmentStatusStopped,
		Outcome:    models.OutcomeCycleDetected,
	})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.OutcomeCycleDetected, event.Outcome)
	assert.Equal(t, EnrollmentFinishedEvent, event.GetType())
}
