package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/conflicts"
	"github.com/dukex/dealflow/pkg/dispatcher"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/google/uuid"
)

// Simulator previews a rule against stored entities. *dispatcher.Dispatcher implements it.
type Simulator interface {
	Simulate(ctx context.Context, rule *models.AutomationRule) (*dispatcher.Simulation, error)
}

// RuleChange is the result of a write: the stored rule plus advisory conflicts.
type RuleChange struct {
	Rule      *models.AutomationRule `json:"rule"`
	Conflicts []conflicts.Report     `json:"conflicts"`
}

type Rules struct {
	persistence persistence.Persistence
	simulator   Simulator
	clock       clock.Clock
	logger      *slog.Logger
}

// NewRules creates the rule service. simulator may be nil, which disables dry runs.
func NewRules(logger *slog.Logger, p persistence.Persistence, simulator Simulator, clk clock.Clock) *Rules {
	return &Rules{
		persistence: p,
		simulator:   simulator,
		clock:       clk,
		logger:      logger.With("module", "rule_service"),
	}
}

// ListRulesRequest contains options for listing rules.
type ListRulesRequest struct {
	TenantID    string
	Status      *models.RuleStatus
	TriggerType models.TriggerType

	Limit  int
	Offset int

	SortBy    string
	SortOrder string
}

// ListRules retrieves the tenant's rules with filtering, sorting, and pagination.
func (r *Rules) ListRules(ctx context.Context, req ListRulesRequest) (*persistence.RuleListResult, error) {
	if err := validateListRulesRequest(&req); err != nil {
		return nil, err
	}

	result, err := r.persistence.RuleRepository().List(ctx, persistence.ListRulesOptions{
		TenantID:    req.TenantID,
		Status:      req.Status,
		TriggerType: req.TriggerType,
		Limit:       req.Limit,
		Offset:      req.Offset,
		SortBy:      req.SortBy,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrInvalidSortField) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	return result, nil
}

func validateListRulesRequest(req *ListRulesRequest) error {
	if req.TenantID == "" {
		return ErrEmptyTenantID
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "priority"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains([]string{"created_at", "updated_at", "name", "priority"}, req.SortBy) {
		return ErrInvalidSortField
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return ErrInvalidSortOrder
	}

	if req.Status != nil && !req.Status.IsValid() {
		return ErrInvalidStatus
	}

	return nil
}

// GetRule fetches one rule of the tenant.
func (r *Rules) GetRule(ctx context.Context, tenantID, id string) (*models.AutomationRule, error) {
	return r.persistence.RuleRepository().GetByID(ctx, tenantID, id)
}

// CreateRule stores a new rule as version 1. Rules without a status start active.
func (r *Rules) CreateRule(ctx context.Context, rule *models.AutomationRule, createdBy string) (*RuleChange, error) {
	now := r.clock.Now()

	rule.ID = uuid.New().String()
	rule.Name = strings.TrimSpace(rule.Name)
	rule.CreatedBy = createdBy
	rule.Version = 1
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if rule.Status == "" {
		rule.Status = models.RuleStatusActive
	}

	if err := rule.Validate(); err != nil {
		return nil, invalid("CreateRule", ErrInvalidRule, err)
	}

	return r.store(ctx, rule, "created", createdBy)
}

// UpdateRule replaces the editable fields of a rule and records a new version.
func (r *Rules) UpdateRule(ctx context.Context, tenantID, id string, update *models.AutomationRule, updatedBy, note string) (*RuleChange, error) {
	existing, err := r.GetRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	next := existing.Clone()
	next.Name = strings.TrimSpace(update.Name)
	next.Description = update.Description
	next.Priority = update.Priority
	next.Trigger = update.Trigger.Clone()
	next.Action = update.Action.Clone()
	next.Conditions = update.Conditions.Clone()

	if update.Status != "" {
		next.Status = update.Status
	}

	if err := next.Validate(); err != nil {
		return nil, invalid("UpdateRule", ErrInvalidRule, err)
	}

	if note == "" {
		note = "updated"
	}

	return r.bump(ctx, next, note, updatedBy)
}

// ToggleRule flips a rule between active and paused.
func (r *Rules) ToggleRule(ctx context.Context, tenantID, id, updatedBy string) (*RuleChange, error) {
	existing, err := r.GetRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	next := existing.Clone()
	if next.IsActive() {
		next.Status = models.RuleStatusPaused
	} else {
		next.Status = models.RuleStatusActive
	}

	return r.bump(ctx, next, "status changed to "+string(next.Status), updatedBy)
}

// CloneRule copies a rule under a new ID. The copy starts paused so it cannot double fire.
func (r *Rules) CloneRule(ctx context.Context, tenantID, id, createdBy string) (*RuleChange, error) {
	existing, err := r.GetRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	clone := existing.Clone()
	clone.Name = existing.Name + " (copy)"
	clone.Status = models.RuleStatusPaused

	return r.CreateRule(ctx, clone, createdBy)
}

// DeleteRule removes a rule. Its execution history is kept.
func (r *Rules) DeleteRule(ctx context.Context, tenantID, id string) error {
	if err := r.persistence.RuleRepository().Delete(ctx, tenantID, id); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "rule deleted", "tenant_id", tenantID, "rule_id", id)

	return nil
}

// RuleVersions lists the stored snapshots of a rule, oldest first.
func (r *Rules) RuleVersions(ctx context.Context, tenantID, id string) ([]*models.RuleVersion, error) {
	if _, err := r.GetRule(ctx, tenantID, id); err != nil {
		return nil, err
	}

	return r.persistence.RuleRepository().Versions(ctx, tenantID, id)
}

// RollbackRule restores the definition of an earlier version into a new version.
func (r *Rules) RollbackRule(ctx context.Context, tenantID, id string, version int, updatedBy string) (*RuleChange, error) {
	versions, err := r.RuleVersions(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var target *models.RuleVersion

	for _, v := range versions {
		if v.Version == version {
			target = v

			break
		}
	}

	if target == nil || target.Snapshot == nil {
		return nil, persistence.NewRecordError("RollbackRule", "rule version", tenantID, fmt.Sprintf("%s@%d", id, version), persistence.ErrRuleVersionNotFound)
	}

	existing, err := r.GetRule(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	next := existing.Clone()
	restored := target.Snapshot.Clone()
	next.Name = restored.Name
	next.Description = restored.Description
	next.Status = restored.Status
	next.Priority = restored.Priority
	next.Trigger = restored.Trigger
	next.Action = restored.Action
	next.Conditions = restored.Conditions

	return r.bump(ctx, next, fmt.Sprintf("rollback to version %d", version), updatedBy)
}

// DryRun previews how many stored entities the rule would affect right now.
func (r *Rules) DryRun(ctx context.Context, tenantID string, rule *models.AutomationRule) (*dispatcher.Simulation, error) {
	if r.simulator == nil {
		return nil, errors.New("dry run is not configured")
	}

	rule.TenantID = tenantID
	if rule.Status == "" {
		rule.Status = models.RuleStatusActive
	}

	if err := rule.Validate(); err != nil {
		return nil, invalid("DryRun", ErrInvalidRule, err)
	}

	return r.simulator.Simulate(ctx, rule)
}

// ExecutionQuery selects execution history entries of one tenant.
type ExecutionQuery struct {
	TenantID   string
	RuleID     string
	EntityType string
	EntityID   string
	Status     *models.ExecutionStatus
	Limit      int
	Offset     int
}

// ListExecutions returns the tenant's execution history, newest first.
func (r *Rules) ListExecutions(ctx context.Context, query ExecutionQuery) (*persistence.ExecutionListResult, error) {
	if query.TenantID == "" {
		return nil, ErrEmptyTenantID
	}

	if query.Status != nil && !query.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 50
	}

	return r.persistence.ExecutionRepository().List(ctx, persistence.ExecutionFilter{
		TenantID:   query.TenantID,
		RuleID:     query.RuleID,
		EntityType: query.EntityType,
		EntityID:   query.EntityID,
		Status:     query.Status,
		Limit:      query.Limit,
		Offset:     max(query.Offset, 0),
	})
}

func (r *Rules) bump(ctx context.Context, rule *models.AutomationRule, note, by string) (*RuleChange, error) {
	rule.Version++
	rule.UpdatedAt = r.clock.Now()

	return r.store(ctx, rule, note, by)
}

// store saves the rule and its version snapshot, then reports conflicts with the
// tenant's other active rules.
func (r *Rules) store(ctx context.Context, rule *models.AutomationRule, note, by string) (*RuleChange, error) {
	repo := r.persistence.RuleRepository()

	if err := repo.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	version := &models.RuleVersion{
		RuleID:    rule.ID,
		Version:   rule.Version,
		Snapshot:  rule.Clone(),
		Note:      note,
		CreatedBy: by,
		CreatedAt: rule.UpdatedAt,
	}

	if err := repo.SaveVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to save rule version: %w", err)
	}

	change := &RuleChange{Rule: rule, Conflicts: []conflicts.Report{}}

	if rule.IsActive() {
		active, err := repo.ListActive(ctx, rule.TenantID)
		if err != nil {
			r.logger.WarnContext(ctx, "conflict check skipped", "rule_id", rule.ID, "error", err)
		} else if reports := conflicts.Detect(rule, active); len(reports) > 0 {
			change.Conflicts = reports
		}
	}

	r.logger.InfoContext(ctx, "rule saved",
		"tenant_id", rule.TenantID,
		"rule_id", rule.ID,
		"version", rule.Version,
		"status", rule.Status,
		"conflicts", len(change.Conflicts))

	return change, nil
}
