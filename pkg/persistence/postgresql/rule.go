package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// RuleRepository handles rule and rule version operations.
type RuleRepository struct {
	store
}

var ruleSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"priority":   "priority",
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.AutomationRule) error {
	stamp(&rule.CreatedAt, &rule.UpdatedAt)

	data, err := json.Marshal(rule)
	if err != nil {
		return persistence.NewRecordError("Save", "rule", rule.TenantID, rule.ID, err)
	}

	query := `
		INSERT INTO rules (tenant_id, id, name, status, priority, trigger_type, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			trigger_type = EXCLUDED.trigger_type,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.TenantID,
		rule.ID,
		rule.Name,
		rule.Status,
		rule.Priority,
		rule.Trigger.Type,
		data,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", "rule", rule.TenantID, rule.ID, err)
	}

	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, tenantID, id string) (*models.AutomationRule, error) {
	rule, found, err := getDocument[models.AutomationRule](ctx, r.store,
		"SELECT data FROM rules WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "rule", tenantID, id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "rule", tenantID, id, persistence.ErrRuleNotFound)
	}

	return rule, nil
}

func (r *RuleRepository) List(ctx context.Context, opts persistence.ListRulesOptions) (*persistence.RuleListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	column, ok := ruleSortColumns[opts.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	direction := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		direction = "ASC"
	}

	where := []string{"tenant_id = $1"}
	args := []any{opts.TenantID}

	if opts.Status != nil {
		args = append(args, *opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	if opts.TriggerType != "" {
		args = append(args, opts.TriggerType)
		where = append(where, fmt.Sprintf("trigger_type = $%d", len(args)))
	}

	condition := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rules WHERE "+condition, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}

	query := fmt.Sprintf("SELECT data FROM rules WHERE %s ORDER BY %s %s, id ASC LIMIT $%d OFFSET $%d",
		condition, column, direction, len(args)+1, len(args)+2)

	rules, err := queryDocuments[models.AutomationRule](ctx, r.store, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.RuleListResult{
		Rules:       rules,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(rules)) < total,
	}, nil
}

func (r *RuleRepository) ListActive(ctx context.Context, tenantID string) ([]*models.AutomationRule, error) {
	return queryDocuments[models.AutomationRule](ctx, r.store,
		"SELECT data FROM rules WHERE tenant_id = $1 AND status = $2 ORDER BY created_at, id",
		tenantID, models.RuleStatusActive)
}

func (r *RuleRepository) Delete(ctx context.Context, tenantID, id string) error {
	deleted, err := exec(ctx, r.store, "DELETE FROM rules WHERE tenant_id = $1 AND id = $2", tenantID, id)
	if err != nil {
		return persistence.NewRecordError("Delete", "rule", tenantID, id, err)
	}

	if !deleted {
		return persistence.NewRecordError("Delete", "rule", tenantID, id, persistence.ErrRuleNotFound)
	}

	return nil
}

func (r *RuleRepository) SaveVersion(ctx context.Context, version *models.RuleVersion) error {
	tenantID := ""
	if version.Snapshot != nil {
		tenantID = version.Snapshot.TenantID
	}

	data, err := json.Marshal(version)
	if err != nil {
		return persistence.NewRecordError("SaveVersion", "rule", tenantID, version.RuleID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rule_versions (tenant_id, rule_id, version, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, rule_id, version) DO UPDATE SET data = EXCLUDED.data
	`, tenantID, version.RuleID, version.Version, data, version.CreatedAt)
	if err != nil {
		return persistence.NewRecordError("SaveVersion", "rule", tenantID, version.RuleID, err)
	}

	return nil
}

func (r *RuleRepository) Versions(ctx context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error) {
	return queryDocuments[models.RuleVersion](ctx, r.store,
		"SELECT data FROM rule_versions WHERE tenant_id = $1 AND rule_id = $2 ORDER BY version",
		tenantID, ruleID)
}

func (r *RuleRepository) ActiveTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT tenant_id FROM rules WHERE status = $1 ORDER BY tenant_id", models.RuleStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query active tenants: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tenants := make([]string, 0)

	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}

		tenants = append(tenants, tenantID)
	}

	return tenants, rows.Err()
}
