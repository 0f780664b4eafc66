package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newRule(t *testing.T, tenantID, id string, priority int, status models.RuleStatus, createdAt time.Time) *models.AutomationRule {
	t.Helper()

	trigger, err := models.NewTrigger(models.StageEnteredConfig{ToStage: "proposal"})
	require.NoError(t, err)

	action, err := models.NewAction(models.CreateTaskConfig{Title: "Send proposal", DueInDays: 2})
	require.NoError(t, err)

	return &models.AutomationRule{
		ID:        id,
		TenantID:  tenantID,
		Name:      "Rule " + id,
		Status:    status,
		Priority:  priority,
		Trigger:   trigger,
		Action:    action,
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRuleRepository_CRUD(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RuleRepository()

	rule := newRule(t, "acme", "r1", 5, models.RuleStatusActive, base)
	require.NoError(t, repo.Save(t.Context(), rule))

	loaded, err := repo.GetByID(t.Context(), "acme", "r1")
	require.NoError(t, err)
	assert.Equal(t, rule.Name, loaded.Name)

	config, ok := loaded.Trigger.StageEntered()
	require.True(t, ok)
	assert.Equal(t, "proposal", config.ToStage)

	_, err = repo.GetByID(t.Context(), "globex", "r1")
	assert.True(t, persistence.IsRuleNotFound(err))

	require.NoError(t, repo.Delete(t.Context(), "acme", "r1"))
	assert.ErrorIs(t, repo.Delete(t.Context(), "acme", "r1"), persistence.ErrRuleNotFound)
}

func TestRuleRepository_ListFiltersSortsAndPaginates(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RuleRepository()

	for i, priority := range []int{1, 9, 5} {
		status := models.RuleStatusActive
		if i == 0 {
			status = models.RuleStatusPaused
		}

		require.NoError(t, repo.Save(t.Context(), newRule(t, "acme", string(rune('a'+i)), priority, status, base.Add(time.Duration(i)*time.Minute))))
	}

	result, err := repo.List(t.Context(), persistence.ListRulesOptions{TenantID: "acme", SortBy: "priority", SortOrder: "desc", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Rules, 2)
	assert.Equal(t, 9, result.Rules[0].Priority)
	assert.Equal(t, 5, result.Rules[1].Priority)

	paused := models.RuleStatusPaused
	result, err = repo.List(t.Context(), persistence.ListRulesOptions{TenantID: "acme", Status: &paused})
	require.NoError(t, err)
	require.Len(t, result.Rules, 1)
	assert.Equal(t, "a", result.Rules[0].ID)

	_, err = repo.List(t.Context(), persistence.ListRulesOptions{TenantID: "acme", SortBy: "drop table"})
	assert.ErrorIs(t, err, persistence.ErrInvalidSortField)

	active, err := repo.ListActive(t.Context(), "acme")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	tenants, err := repo.ActiveTenants(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, tenants)
}

func TestRuleRepository_Versions(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.RuleRepository()

	for v := 3; v >= 1; v-- {
		rule := newRule(t, "acme", "r1", v, models.RuleStatusActive, base)
		rule.Version = v
		require.NoError(t, repo.SaveVersion(t.Context(), &models.RuleVersion{RuleID: "r1", Version: v, Snapshot: rule, CreatedAt: base}))
	}

	versions, err := repo.Versions(t.Context(), "acme", "r1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 3, versions[2].Snapshot.Priority)
}

func TestRuleRepository_RejectsPathTraversal(t *testing.T) {
	p := NewPersistence(t.TempDir())

	rule := newRule(t, "../evil", "r1", 1, models.RuleStatusActive, base)
	assert.Error(t, p.RuleRepository().Save(t.Context(), rule))
}

func TestExecutionRepository_AppendAndList(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.ExecutionRepository()

	first := []*models.RuleExecution{
		{ID: "x1", TenantID: "acme", RuleID: "A", EventID: "e1", Sequence: 0, ExecutedAt: base, Status: models.ExecutionStatusSuccess, EntityType: "deal", EntityID: "d1"},
		{ID: "x2", TenantID: "acme", RuleID: "B", EventID: "e1", Sequence: 1, ExecutedAt: base, Status: models.ExecutionStatusFailed, EntityType: "deal", EntityID: "d1"},
	}
	second := []*models.RuleExecution{
		{ID: "x3", TenantID: "acme", RuleID: "A", EventID: "e2", Sequence: 0, ExecutedAt: base.Add(time.Hour), Status: models.ExecutionStatusSkipped, EntityType: "deal", EntityID: "d2"},
	}

	require.NoError(t, repo.Append(t.Context(), first))
	require.NoError(t, repo.Append(t.Context(), second))

	result, err := repo.List(t.Context(), persistence.ExecutionFilter{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, result.Executions, 3)
	assert.Equal(t, "x3", result.Executions[0].ID)
	assert.Equal(t, "x1", result.Executions[1].ID)
	assert.Equal(t, "x2", result.Executions[2].ID)

	failed := models.ExecutionStatusFailed
	result, err = repo.List(t.Context(), persistence.ExecutionFilter{TenantID: "acme", Status: &failed})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "B", result.Executions[0].RuleID)

	latest, err := repo.LatestForEntity(t.Context(), "acme", models.EntityRef{Type: "deal", ID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"A": base, "B": base}, latest)

	empty, err := repo.List(t.Context(), persistence.ExecutionFilter{TenantID: "globex"})
	require.NoError(t, err)
	assert.Empty(t, empty.Executions)
}

func TestTemplateRepository_Visibility(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.TemplateRepository()

	templates := []*models.AutomationTemplate{
		{ID: "pub", Name: "Public follow-up", Category: "follow_up", Tags: []string{"email"}, InstallCount: 10},
		{ID: "own", TenantID: "acme", Name: "Acme escalation", Category: "pipeline"},
		{ID: "other", TenantID: "globex", Name: "Globex only", Category: "pipeline"},
	}
	for _, template := range templates {
		require.NoError(t, repo.Save(t.Context(), template))
	}

	visible, err := repo.List(t.Context(), persistence.ListTemplatesOptions{TenantID: "acme"})
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "pub", visible[0].ID)

	byTag, err := repo.List(t.Context(), persistence.ListTemplatesOptions{TenantID: "acme", Tag: "EMAIL"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)

	search, err := repo.List(t.Context(), persistence.ListTemplatesOptions{TenantID: "acme", Search: "escal"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "own", search[0].ID)

	_, err = repo.GetByID(t.Context(), "missing")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestWorkflowAndEnrollmentRepositories(t *testing.T) {
	p := NewPersistence(t.TempDir())

	workflow := &models.WorkflowDefinition{
		WorkflowID:  "wf-1",
		TenantID:    "acme",
		Name:        "Nurture",
		EntryNodeID: "stop",
		Nodes:       []*models.WorkflowNode{{NodeID: "stop", Type: models.NodeTypeStop}},
	}
	require.NoError(t, p.WorkflowRepository().Save(t.Context(), workflow))

	loaded, err := p.WorkflowRepository().GetByID(t.Context(), "acme", "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "stop", loaded.EntryNodeID)

	_, err = p.WorkflowRepository().GetByID(t.Context(), "globex", "wf-1")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	for i, status := range []models.EnrollmentStatus{models.EnrollmentStatusActive, models.EnrollmentStatusCompleted} {
		require.NoError(t, p.EnrollmentRepository().Save(t.Context(), &models.WorkflowEnrollment{
			ID:         string(rune('a' + i)),
			TenantID:   "acme",
			WorkflowID: "wf-1",
			EntityType: "contact",
			EntityID:   "c1",
			Status:     status,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, p.EnrollmentRepository().Save(t.Context(), &models.WorkflowEnrollment{
		ID: "z", TenantID: "globex", WorkflowID: "wf-9", Status: models.EnrollmentStatusActive, CreatedAt: base,
	}))

	active, err := p.EnrollmentRepository().ListActive(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, active, 2)

	acme, err := p.EnrollmentRepository().ListActive(t.Context(), "acme")
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, "a", acme[0].ID)

	all, err := p.EnrollmentRepository().List(t.Context(), persistence.ListEnrollmentsOptions{TenantID: "acme", EntityID: "c1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEntityRepository(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)
	repo := p.EntityRepository()

	entity := &models.Entity{ID: "d1", TenantID: "acme", Type: "deal", Fields: map[string]any{"stage": "proposal"}}
	require.NoError(t, repo.SaveEntity(t.Context(), entity))

	loaded, err := repo.GetEntity(t.Context(), "acme", entity.Ref())
	require.NoError(t, err)
	assert.Equal(t, "proposal", loaded.Stage())

	_, err = os.Stat(filepath.Join(root, "entities", "acme", "deal", "d1.json"))
	require.NoError(t, err)

	_, err = repo.GetEntity(t.Context(), "acme", models.EntityRef{Type: "deal", ID: "nope"})
	assert.True(t, persistence.IsEntityNotFound(err))

	require.NoError(t, repo.CreateTask(t.Context(), &models.Task{ID: "t1", TenantID: "acme", Title: "Call", EntityType: "deal", EntityID: "d1", CreatedAt: base}))
	require.NoError(t, repo.CreateTask(t.Context(), &models.Task{ID: "t2", TenantID: "acme", Title: "Other", EntityType: "deal", EntityID: "d2", CreatedAt: base}))

	tasks, err := repo.ListTasks(t.Context(), "acme", entity.Ref())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Call", tasks[0].Title)

	require.NoError(t, repo.SaveNotification(t.Context(), &models.Notification{ID: "n1", TenantID: "acme", Message: "hi", CreatedAt: base}))

	notifications, err := repo.ListNotifications(t.Context(), "acme")
	require.NoError(t, err)
	assert.Len(t, notifications, 1)
}

func TestPersistence_HealthCheck(t *testing.T) {
	p := NewPersistence("file://" + filepath.Join(t.TempDir(), "data"))
	assert.NoError(t, p.HealthCheck(t.Context()))
}
