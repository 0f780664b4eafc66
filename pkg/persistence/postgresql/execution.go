package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// ExecutionRepository stores the append-only rule execution log.
type ExecutionRepository struct {
	store
}

// Append inserts the records of one event in a single transaction.
func (r *ExecutionRepository) Append(ctx context.Context, executions []*models.RuleExecution) (err error) {
	if len(executions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_executions (id, tenant_id, rule_id, event_id, sequence, status, entity_type, entity_id, executed_at, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare execution insert: %w", err)
	}

	defer func() { _ = stmt.Close() }()

	for _, execution := range executions {
		data, marshalErr := json.Marshal(execution)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal execution %s: %w", execution.ID, marshalErr)
		}

		if _, err = stmt.ExecContext(ctx,
			execution.ID,
			execution.TenantID,
			execution.RuleID,
			execution.EventID,
			execution.Sequence,
			execution.Status,
			execution.EntityType,
			execution.EntityID,
			execution.ExecutedAt,
			data,
		); err != nil {
			return fmt.Errorf("failed to insert execution %s: %w", execution.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit executions: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) (*persistence.ExecutionListResult, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	where := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}

	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.RuleID != "" {
		add("rule_id", filter.RuleID)
	}

	if filter.EventID != "" {
		add("event_id", filter.EventID)
	}

	if filter.EntityType != "" {
		add("entity_type", filter.EntityType)
	}

	if filter.EntityID != "" {
		add("entity_id", filter.EntityID)
	}

	if filter.Status != nil {
		add("status", *filter.Status)
	}

	condition := strings.Join(where, " AND ")

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rule_executions WHERE "+condition, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT data FROM rule_executions WHERE %s ORDER BY executed_at DESC, event_id, sequence LIMIT $%d OFFSET $%d",
		condition, len(args)+1, len(args)+2)

	executions, err := queryDocuments[models.RuleExecution](ctx, r.store, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.ExecutionListResult{
		Executions:  executions,
		TotalCount:  total,
		HasNextPage: int64(filter.Offset+len(executions)) < total,
	}, nil
}

func (r *ExecutionRepository) LatestForEntity(ctx context.Context, tenantID string, entity models.EntityRef) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rule_id, MAX(executed_at)
		FROM rule_executions
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		GROUP BY rule_id
	`, tenantID, entity.Type, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	latest := make(map[string]time.Time)

	for rows.Next() {
		var (
			ruleID string
			at     time.Time
		)

		if err := rows.Scan(&ruleID, &at); err != nil {
			return nil, fmt.Errorf("failed to scan execution history: %w", err)
		}

		latest[ruleID] = at.UTC()
	}

	return latest, rows.Err()
}
