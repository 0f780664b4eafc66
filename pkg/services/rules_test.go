package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/conflicts"
	"github.com/dukex/dealflow/pkg/dispatcher"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/persistence/file"
	"github.com/dukex/dealflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serviceNow = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeSimulator struct {
	rules []*models.AutomationRule
}

func (f *fakeSimulator) Simulate(_ context.Context, rule *models.AutomationRule) (*dispatcher.Simulation, error) {
	f.rules = append(f.rules, rule)

	return &dispatcher.Simulation{Evaluated: 3, AffectedCount: 1, SampleIDs: []string{"d-1"}, Description: dispatcher.Describe(rule)}, nil
}

func newRules(t *testing.T) (*Rules, *file.Persistence, *clock.Fake) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	clk := clock.NewFake(serviceNow)

	return NewRules(slog.New(slog.DiscardHandler), p, &fakeSimulator{}, clk), p, clk
}

func newRuleInput(opts ...func(*models.AutomationRule)) *models.AutomationRule {
	rule := testutil.CreateTestRule("", opts...)
	rule.ID = ""
	rule.Status = ""

	return rule
}

func TestRules_CreateRule(t *testing.T) {
	service, p, _ := newRules(t)

	input := newRuleInput(testutil.WithName("  Proposal follow-up "))
	input.TenantID = "acme"

	change, err := service.CreateRule(t.Context(), input, "alice")
	require.NoError(t, err)

	rule := change.Rule
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "Proposal follow-up", rule.Name)
	assert.Equal(t, models.RuleStatusActive, rule.Status)
	assert.Equal(t, 1, rule.Version)
	assert.Equal(t, serviceNow, rule.CreatedAt)
	assert.Empty(t, change.Conflicts)

	versions, err := p.RuleRepository().Versions(t.Context(), "acme", rule.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "created", versions[0].Note)
	assert.Equal(t, "alice", versions[0].CreatedBy)
}

func TestRules_CreateRuleRejectsInvalidRule(t *testing.T) {
	service, _, _ := newRules(t)

	input := newRuleInput()
	input.TenantID = "acme"
	input.Action = models.Action{Type: models.ActionCreateTask, Config: &models.CreateTaskConfig{}}

	_, err := service.CreateRule(t.Context(), input, "alice")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, models.ErrInvalidActionConfig)
}

func TestRules_CreateRuleReportsConflicts(t *testing.T) {
	service, _, _ := newRules(t)

	won := newRuleInput(testutil.WithName("Won on reply"),
		testutil.WithTrigger(models.EmailRepliedConfig{}),
		testutil.WithAction(models.MoveStageConfig{ToStage: "won"}))
	won.TenantID = "acme"

	_, err := service.CreateRule(t.Context(), won, "alice")
	require.NoError(t, err)

	lost := newRuleInput(testutil.WithName("Lost on reply"),
		testutil.WithTrigger(models.EmailRepliedConfig{}),
		testutil.WithAction(models.MoveStageConfig{ToStage: "lost"}))
	lost.TenantID = "acme"

	change, err := service.CreateRule(t.Context(), lost, "alice")
	require.NoError(t, err, "conflicts are advisory")
	require.Len(t, change.Conflicts, 1)
	assert.Equal(t, conflicts.KindOppositeAction, change.Conflicts[0].Kind)
}

func TestRules_UpdateToggleAndRollback(t *testing.T) {
	service, _, clk := newRules(t)

	input := newRuleInput(testutil.WithPriority(3))
	input.TenantID = "acme"

	created, err := service.CreateRule(t.Context(), input, "alice")
	require.NoError(t, err)

	id := created.Rule.ID

	clk.Add(time.Hour)

	update := created.Rule.Clone()
	update.Priority = 10
	update.Name = "Renamed"

	updated, err := service.UpdateRule(t.Context(), "acme", id, update, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Rule.Version)
	assert.Equal(t, 10, updated.Rule.Priority)
	assert.Equal(t, serviceNow, updated.Rule.CreatedAt)
	assert.Equal(t, serviceNow.Add(time.Hour), updated.Rule.UpdatedAt)

	toggled, err := service.ToggleRule(t.Context(), "acme", id, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RuleStatusPaused, toggled.Rule.Status)
	assert.Equal(t, 3, toggled.Rule.Version)

	rolled, err := service.RollbackRule(t.Context(), "acme", id, 1, "carol")
	require.NoError(t, err)
	assert.Equal(t, 4, rolled.Rule.Version)
	assert.Equal(t, 3, rolled.Rule.Priority)
	assert.Equal(t, "Test Rule", rolled.Rule.Name)
	assert.Equal(t, models.RuleStatusActive, rolled.Rule.Status)

	versions, err := service.RuleVersions(t.Context(), "acme", id)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	assert.Equal(t, 10, versions[1].Snapshot.Priority, "history is never rewritten")
	assert.Equal(t, "rollback to version 1", versions[3].Note)

	_, err = service.RollbackRule(t.Context(), "acme", id, 42, "carol")
	assert.True(t, IsNotFoundError(err))
}

func TestRules_CloneStartsPaused(t *testing.T) {
	service, _, _ := newRules(t)

	input := newRuleInput()
	input.TenantID = "acme"

	created, err := service.CreateRule(t.Context(), input, "alice")
	require.NoError(t, err)

	clone, err := service.CloneRule(t.Context(), "acme", created.Rule.ID, "bob")
	require.NoError(t, err)

	assert.NotEqual(t, created.Rule.ID, clone.Rule.ID)
	assert.Equal(t, "Test Rule (copy)", clone.Rule.Name)
	assert.Equal(t, models.RuleStatusPaused, clone.Rule.Status)
	assert.Equal(t, 1, clone.Rule.Version)
}

func TestRules_TenantIsolation(t *testing.T) {
	service, _, _ := newRules(t)

	input := newRuleInput()
	input.TenantID = "acme"

	created, err := service.CreateRule(t.Context(), input, "alice")
	require.NoError(t, err)

	_, err = service.GetRule(t.Context(), "globex", created.Rule.ID)
	assert.True(t, IsNotFoundError(err))

	err = service.DeleteRule(t.Context(), "globex", created.Rule.ID)
	assert.True(t, IsNotFoundError(err))

	require.NoError(t, service.DeleteRule(t.Context(), "acme", created.Rule.ID))
}

func TestRules_ListRules(t *testing.T) {
	service, _, _ := newRules(t)

	for i, name := range []string{"Low", "High", "Mid"} {
		input := newRuleInput(testutil.WithName(name), testutil.WithPriority([]int{1, 9, 5}[i]))
		input.TenantID = "acme"

		_, err := service.CreateRule(t.Context(), input, "alice")
		require.NoError(t, err)
	}

	result, err := service.ListRules(t.Context(), ListRulesRequest{TenantID: "acme", Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Rules, 2)
	assert.Equal(t, "High", result.Rules[0].Name)
	assert.Equal(t, "Mid", result.Rules[1].Name)
	assert.EqualValues(t, 3, result.TotalCount)
	assert.True(t, result.HasNextPage)

	tests := []struct {
		name string
		req  ListRulesRequest
		want error
	}{
		{"missing tenant", ListRulesRequest{}, ErrEmptyTenantID},
		{"bad sort field", ListRulesRequest{TenantID: "acme", SortBy: "owner"}, ErrInvalidSortField},
		{"bad sort order", ListRulesRequest{TenantID: "acme", SortOrder: "up"}, ErrInvalidSortOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ListRules(t.Context(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestRules_DryRunUsesSimulator(t *testing.T) {
	p := file.NewPersistence(t.TempDir())
	simulator := &fakeSimulator{}
	service := NewRules(slog.New(slog.DiscardHandler), p, simulator, clock.NewFake(serviceNow))

	simulation, err := service.DryRun(t.Context(), "acme", newRuleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, simulation.AffectedCount)
	assert.Contains(t, simulation.Description, "proposal")

	require.Len(t, simulator.rules, 1)
	assert.Equal(t, "acme", simulator.rules[0].TenantID)

	result, err := p.RuleRepository().List(t.Context(), persistence.ListRulesOptions{TenantID: "acme", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Rules, "dry run never stores the rule")
}

func TestRules_ListExecutions(t *testing.T) {
	service, p, _ := newRules(t)

	require.NoError(t, p.ExecutionRepository().Append(t.Context(), []*models.RuleExecution{
		{ID: "x1", TenantID: "acme", RuleID: "r1", EventID: "e1", Sequence: 1, Status: models.ExecutionStatusSuccess, EntityType: "deal", EntityID: "d1", ExecutedAt: serviceNow},
		{ID: "x2", TenantID: "acme", RuleID: "r2", EventID: "e1", Sequence: 2, Status: models.ExecutionStatusFailed, EntityType: "deal", EntityID: "d1", ExecutedAt: serviceNow},
	}))

	failed := models.ExecutionStatusFailed

	result, err := service.ListExecutions(t.Context(), ExecutionQuery{TenantID: "acme", Status: &failed})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "r2", result.Executions[0].RuleID)

	result, err = service.ListExecutions(t.Context(), ExecutionQuery{TenantID: "acme", EntityType: "deal", EntityID: "d1"})
	require.NoError(t, err)
	assert.Len(t, result.Executions, 2)

	_, err = service.ListExecutions(t.Context(), ExecutionQuery{})
	assert.ErrorIs(t, err, ErrEmptyTenantID)
}
