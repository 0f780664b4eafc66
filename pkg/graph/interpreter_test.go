package graph

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)

type fakeEffects struct {
	mu      sync.Mutex
	entity  *models.Entity
	sendErr error
	sent    []string
	updates []models.UpdateFieldConfig
	notices []string
}

func (f *fakeEffects) SendEmail(_ context.Context, _ string, _ models.EntityRef, config models.SendNodeConfig, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return "", f.sendErr
	}

	f.sent = append(f.sent, config.Subject)

	return "sent", nil
}

func (f *fakeEffects) ApplyUpdate(_ context.Context, _ string, _ models.EntityRef, config models.UpdateFieldConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updates = append(f.updates, config)

	return "updated", nil
}

func (f *fakeEffects) Notify(_ context.Context, _ string, _ models.EntityRef, config models.SendNotificationConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.notices = append(f.notices, config.Message)

	return "notified", nil
}

func (f *fakeEffects) Entity(context.Context, string, models.EntityRef) (*models.Entity, error) {
	if f.entity == nil {
		return nil, errors.New("entity not found")
	}

	return f.entity, nil
}

func node(id string, nodeType models.NodeType, config map[string]any, edges map[string]string) *models.WorkflowNode {
	return &models.WorkflowNode{NodeID: id, Type: nodeType, Config: config, Edges: edges}
}

func def(entry string, nodes ...*models.WorkflowNode) *models.WorkflowDefinition {
	return &models.WorkflowDefinition{WorkflowID: "wf-1", TenantID: "acme", Name: "Test flow", EntryNodeID: entry, Nodes: nodes}
}

func newEnrollment() *models.WorkflowEnrollment {
	return &models.WorkflowEnrollment{ID: "enr-1", TenantID: "acme", WorkflowID: "wf-1", EntityType: "contact", EntityID: "c-1", CreatedAt: start}
}

func newTestInterpreter(effects Effects, clk clock.Clock) *Interpreter {
	return NewInterpreter(slog.New(slog.DiscardHandler), effects, clk, nil, 0)
}

func TestInterpreter_SendWaitStop(t *testing.T) {
	clk := clock.NewFake(start)
	effects := &fakeEffects{}
	in := newTestInterpreter(effects, clk)

	workflow := def("send",
		node("send", models.NodeTypeSend, map[string]any{"subject": "Hello"}, map[string]string{"default": "wait"}),
		node("wait", models.NodeTypeWait, map[string]any{"mode": "duration", "amount": 2, "unit": "days"}, map[string]string{"default": "stop"}),
		node("stop", models.NodeTypeStop, map[string]any{"outcome": "done"}, nil),
	)
	require.NoError(t, workflow.ValidateExecutable())

	enrollment := newEnrollment()
	in.Start(t.Context(), workflow, enrollment)

	assert.Equal(t, []string{"Hello"}, effects.sent)
	assert.Equal(t, "wait", enrollment.CurrentNodeID)
	assert.True(t, enrollment.IsActive())

	clk.Add(24 * time.Hour)
	assert.False(t, in.Advance(t.Context(), workflow, enrollment))
	assert.Equal(t, "wait", enrollment.CurrentNodeID)

	clk.Add(24 * time.Hour)
	assert.True(t, in.Advance(t.Context(), workflow, enrollment))
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, "done", enrollment.Outcome)
	assert.Equal(t, "stop", enrollment.CurrentNodeID)

	require.Len(t, enrollment.History, 3)
	assert.Equal(t, models.EdgeDefault, enrollment.History[0].Handle)
	assert.Equal(t, start.Add(48*time.Hour), enrollment.History[2].EnteredAt)
}

func TestInterpreter_CycleFailsClosed(t *testing.T) {
	effects := &fakeEffects{}
	in := newTestInterpreter(effects, clock.NewFake(start))

	workflow := def("a",
		node("a", models.NodeTypeNotify, map[string]any{"message": "ping"}, map[string]string{"default": "b"}),
		node("b", models.NodeTypeUpdate, map[string]any{"update_type": "tag", "tag": "looping"}, map[string]string{"default": "a"}),
	)

	enrollment := newEnrollment()
	in.Start(t.Context(), workflow, enrollment)

	assert.Equal(t, models.EnrollmentStatusStopped, enrollment.Status)
	assert.Equal(t, models.OutcomeCycleDetected, enrollment.Outcome)
	assert.Len(t, effects.notices, 1)
	assert.Len(t, effects.updates, 1)
}

func TestInterpreter_TimedLoopIsNotACycle(t *testing.T) {
	clk := clock.NewFake(start)
	effects := &fakeEffects{}
	in := newTestInterpreter(effects, clk)

	workflow := def("wait",
		node("wait", models.NodeTypeWait, map[string]any{"amount": 1, "unit": "days"}, map[string]string{"default": "send"}),
		node("send", models.NodeTypeSend, map[string]any{"subject": "Daily digest"}, map[string]string{"default": "wait"}),
	)

	enrollment := newEnrollment()
	in.Start(t.Context(), workflow, enrollment)

	for range 3 {
		clk.Add(24 * time.Hour)
		in.Advance(t.Context(), workflow, enrollment)
	}

	assert.True(t, enrollment.IsActive())
	assert.Len(t, effects.sent, 3)
	assert.Equal(t, "wait", enrollment.CurrentNodeID)
}

func replyFlow() *models.WorkflowDefinition {
	return def("wait",
		node("wait", models.NodeTypeWait, map[string]any{"mode": "event", "event_type": "email_replied"}, map[string]string{"default": "stop"}),
		node("stop", models.NodeTypeStop, map[string]any{"outcome": "replied"}, nil),
	)
}

func TestInterpreter_WaitForEvent(t *testing.T) {
	clk := clock.NewFake(start)
	in := newTestInterpreter(&fakeEffects{}, clk)
	workflow := replyFlow()

	enrollment := newEnrollment()
	in.Start(t.Context(), workflow, enrollment)

	in.Observe(t.Context(), workflow, enrollment, &models.CRMEvent{ID: "e1", Type: models.EventEmailOpened, OccurredAt: start.Add(time.Hour)})
	assert.True(t, enrollment.IsActive())

	in.Observe(t.Context(), workflow, enrollment, &models.CRMEvent{ID: "e2", Type: models.EventEmailReplied, OccurredAt: start.Add(2 * time.Hour)})
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	assert.Equal(t, "replied", enrollment.Outcome)
	assert.Len(t, enrollment.ObservedEvents, 2)
}

func TestInterpreter_WaitForEventTimesOut(t *testing.T) {
	clk := clock.NewFake(start)
	in := newTestInterpreter(&fakeEffects{}, clk)
	workflow := replyFlow()

	enrollment := newEnrollment()
	in.Start(t.Context(), workflow, enrollment)

	clk.Add(DefaultEventWaitTimeout - time.Minute)
	assert.False(t, in.Advance(t.Context(), workflow, enrollment))

	clk.Add(time.Minute)
	assert.True(t, in.Advance(t.Context(), workflow, enrollment))
	assert.Equal(t, models.EnrollmentStatusStopped, enrollment.Status)
	assert.Equal(t, models.OutcomeTimedOut, enrollment.Outcome)
}

func TestInterpreter_Branches(t *testing.T) {
	stopYes := node("yes", models.NodeTypeStop, map[string]any{"outcome": "hot"}, nil)
	stopNo := node("no", models.NodeTypeStop, map[string]any{"outcome": "cold"}, nil)

	tests := []struct {
		name    string
		config  map[string]any
		entity  *models.Entity
		events  []models.ObservedEvent
		outcome string
	}{
		{
			name:    "score above threshold",
			config:  map[string]any{"kind": "score_threshold", "threshold": 50},
			entity:  &models.Entity{Fields: map[string]any{"score": 72}},
			outcome: "hot",
		},
		{
			name:    "score missing",
			config:  map[string]any{"kind": "score_threshold", "threshold": 50},
			entity:  &models.Entity{Fields: map[string]any{}},
			outcome: "cold",
		},
		{
			name:    "field compare",
			config:  map[string]any{"kind": "field_compare", "field": "industry", "operator": "equals", "value": "saas"},
			entity:  &models.Entity{Fields: map[string]any{"industry": "saas"}},
			outcome: "hot",
		},
		{
			name:    "event window hit",
			config:  map[string]any{"kind": "event_window", "event_type": "email_opened", "within_hours": 24},
			events:  []models.ObservedEvent{{Type: models.EventEmailOpened, OccurredAt: start.Add(-2 * time.Hour)}},
			outcome: "hot",
		},
		{
			name:    "event window miss",
			config:  map[string]any{"kind": "event_window", "event_type": "email_opened", "within_hours": 1},
			events:  []models.ObservedEvent{{Type: models.EventEmailOpened, OccurredAt: start.Add(-2 * time.Hour)}},
			outcome: "cold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newTestInterpreter(&fakeEffects{entity: tt.entity}, clock.NewFake(start))
			workflow := def("branch", node("branch", models.NodeTypeBranch, tt.config, map[string]string{"yes": "yes", "no": "no"}), stopYes, stopNo)
			require.NoError(t, workflow.ValidateExecutable())

			enrollment := newEnrollment()
			enrollment.ObservedEvents = tt.events
			in.Start(t.Context(), workflow, enrollment)

			assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
			assert.Equal(t, tt.outcome, enrollment.Outcome)
		})
	}
}

func TestInterpreter_NodeFailureStopsEnrollment(t *testing.T) {
	in := newTestInterpreter(&fakeEffects{sendErr: errors.New("mailbox full")}, clock.NewFake(start))

	workflow := def("send",
		node("send", models.NodeTypeSend, map[string]any{"subject": "Hi"}, map[string]string{"default": "stop"}),
		node("stop", models.NodeTypeStop, nil, nil),
	)

	enrollment := newEnrollment()
	in.Start(t.Context(), workflow, enrollment)

	assert.Equal(t, models.EnrollmentStatusStopped, enrollment.Status)
	assert.Equal(t, models.OutcomeNodeFailed, enrollment.Outcome)
	assert.Equal(t, "mailbox full", enrollment.LastError)
	assert.Equal(t, "mailbox full", enrollment.History[0].Error)
}

func TestInterpreter_MissingNodeStops(t *testing.T) {
	in := newTestInterpreter(&fakeEffects{}, clock.NewFake(start))
	workflow := def("stop", node("stop", models.NodeTypeStop, nil, nil))

	enrollment := newEnrollment()
	enrollment.Status = models.EnrollmentStatusActive
	enrollment.CurrentNodeID = "removed"

	assert.True(t, in.Advance(t.Context(), workflow, enrollment))
	assert.Equal(t, models.OutcomeMissingNode, enrollment.Outcome)
}
