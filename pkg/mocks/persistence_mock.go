package mocks

import (
	"context"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockRuleRepository is a mock implementation of persistence.RuleRepository interface.
type MockRuleRepository struct {
	mock.Mock
}

func (m *MockRuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	args := m.Called(ctx, rule)

	return args.Error(0)
}

func (m *MockRuleRepository) GetByID(ctx context.Context, tenantID, id string) (*models.AutomationRule, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) List(ctx context.Context, opts persistence.ListRulesOptions) (*persistence.RuleListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.RuleListResult), args.Error(1)
}

func (m *MockRuleRepository) ListActive(ctx context.Context, tenantID string) ([]*models.AutomationRule, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AutomationRule), args.Error(1)
}

func (m *MockRuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)

	return args.Error(0)
}

func (m *MockRuleRepository) SaveVersion(ctx context.Context, version *models.RuleVersion) error {
	args := m.Called(ctx, version)

	return args.Error(0)
}

func (m *MockRuleRepository) Versions(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error) {
	args := m.Called(ctx, tenantID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.RuleVersion), args.Error(1)
}

func (m *MockRuleRepository) ActiveTenants(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Append(ctx context.Context, executions []*models.RuleExecution) error {
	args := m.Called(ctx, executions)

	return args.Error(0)
}

func (m *MockExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) (*persistence.ExecutionListResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.ExecutionListResult), args.Error(1)
}

func (m *MockExecutionRepository) LatestForEntity(ctx context.Context, tenantID string, entity models.EntityRef) (map[string]time.Time, error) {
	args := m.Called(ctx, tenantID, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]time.Time), args.Error(1)
}

// MockEntityRepository is a mock implementation of persistence.EntityRepository interface.
type MockEntityRepository struct {
	mock.Mock
}

func (m *MockEntityRepository) GetEntity(ctx context.Context, tenantID string, ref models.EntityRef) (*models.Entity, error) {
	args := m.Called(ctx, tenantID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockEntityRepository) SaveEntity(ctx context.Context, entity *models.Entity) error {
	args := m.Called(ctx, entity)

	return args.Error(0)
}

func (m *MockEntityRepository) ListEntities(ctx context.Context, tenantID, entityType string) ([]*models.Entity, error) {
	args := m.Called(ctx, tenantID, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Entity), args.Error(1)
}

func (m *MockEntityRepository) CreateTask(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

func (m *MockEntityRepository) ListTasks(ctx context.Context, tenantID string, ref models.EntityRef) ([]*models.Task, error) {
	args := m.Called(ctx, tenantID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Task), args.Error(1)
}

func (m *MockEntityRepository) SaveNotification(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

func (m *MockEntityRepository) ListNotifications(ctx context.Context, tenantID string) ([]*models.Notification, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Notification), args.Error(1)
}

var (
	_ persistence.RuleRepository      = (*MockRuleRepository)(nil)
	_ persistence.ExecutionRepository = (*MockExecutionRepository)(nil)
	_ persistence.EntityRepository    = (*MockEntityRepository)(nil)
)
