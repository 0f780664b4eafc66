package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// ExecutionRepository appends execution records to executions/<tenant>.jsonl.
type ExecutionRepository struct {
	p *Persistence
}

func (er *ExecutionRepository) file(tenantID string) (string, error) {
	return er.p.path("executions", tenantID+".jsonl")
}

func (er *ExecutionRepository) Append(_ context.Context, executions []*models.RuleExecution) error {
	if len(executions) == 0 {
		return nil
	}

	er.p.mu.Lock()
	defer er.p.mu.Unlock()

	byTenant := make(map[string][]*models.RuleExecution)
	order := make([]string, 0, 1)

	for _, execution := range executions {
		if _, seen := byTenant[execution.TenantID]; !seen {
			order = append(order, execution.TenantID)
		}

		byTenant[execution.TenantID] = append(byTenant[execution.TenantID], execution)
	}

	for _, tenantID := range order {
		if err := er.append(tenantID, byTenant[tenantID]); err != nil {
			return err
		}
	}

	return nil
}

func (er *ExecutionRepository) append(tenantID string, executions []*models.RuleExecution) error {
	path, err := er.file(tenantID)
	if err != nil {
		return persistence.NewRecordError("Append", "execution", tenantID, "", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open execution log: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	writer := bufio.NewWriter(f)
	encoder := json.NewEncoder(writer)

	for _, execution := range executions {
		if err := encoder.Encode(execution); err != nil {
			return fmt.Errorf("failed to encode execution %s: %w", execution.ID, err)
		}
	}

	return writer.Flush()
}

// read returns the tenant's records in append order.
func (er *ExecutionRepository) read(tenantID string) ([]*models.RuleExecution, error) {
	path, err := er.file(tenantID)
	if err != nil {
		return nil, err
	}

	er.p.mu.RLock()
	defer er.p.mu.RUnlock()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to open execution log: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	var executions []*models.RuleExecution

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var execution models.RuleExecution
		if err := json.Unmarshal(scanner.Bytes(), &execution); err != nil {
			return nil, fmt.Errorf("failed to decode execution log: %w", err)
		}

		executions = append(executions, &execution)
	}

	return executions, scanner.Err()
}

func (er *ExecutionRepository) List(_ context.Context, filter persistence.ExecutionFilter) (*persistence.ExecutionListResult, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}

	executions, err := er.read(filter.TenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.RuleExecution, 0, len(executions))

	for _, execution := range executions {
		if matchesFilter(execution, filter) {
			filtered = append(filtered, execution)
		}
	}

	sortExecutions(filtered)

	start, end, hasNext := paginate(len(filtered), filter.Offset, filter.Limit)

	return &persistence.ExecutionListResult{
		Executions:  filtered[start:end],
		TotalCount:  int64(len(filtered)),
		HasNextPage: hasNext,
	}, nil
}

// sortExecutions orders newest first while records of one event keep their sequence.
func sortExecutions(executions []*models.RuleExecution) {
	sort.SliceStable(executions, func(i, j int) bool {
		a, b := executions[i], executions[j]
		if !a.ExecutedAt.Equal(b.ExecutedAt) {
			return a.ExecutedAt.After(b.ExecutedAt)
		}

		if a.EventID != b.EventID {
			return false
		}

		return a.Sequence < b.Sequence
	})
}

func matchesFilter(execution *models.RuleExecution, filter persistence.ExecutionFilter) bool {
	switch {
	case filter.RuleID != "" && execution.RuleID != filter.RuleID:
		return false
	case filter.EventID != "" && execution.EventID != filter.EventID:
		return false
	case filter.EntityType != "" && execution.EntityType != filter.EntityType:
		return false
	case filter.EntityID != "" && execution.EntityID != filter.EntityID:
		return false
	case filter.Status != nil && execution.Status != *filter.Status:
		return false
	default:
		return true
	}
}

func (er *ExecutionRepository) LatestForEntity(_ context.Context, tenantID string, entity models.EntityRef) (map[string]time.Time, error) {
	executions, err := er.read(tenantID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]time.Time)

	for _, execution := range executions {
		if execution.EntityType != entity.Type || execution.EntityID != entity.ID {
			continue
		}

		if execution.ExecutedAt.After(latest[execution.RuleID]) {
			latest[execution.RuleID] = execution.ExecutedAt
		}
	}

	return latest, nil
}
