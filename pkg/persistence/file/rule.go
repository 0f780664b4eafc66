package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// RuleRepository stores rules under rules/<tenant>/<id>.json and their versions under
// rule_versions/<tenant>/<rule>/<version>.json.
type RuleRepository struct {
	p *Persistence
}

func (rr *RuleRepository) Save(_ context.Context, rule *models.AutomationRule) error {
	path, err := rr.p.path("rules", rule.TenantID, rule.ID+".json")
	if err != nil {
		return persistence.NewRecordError("Save", "rule", rule.TenantID, rule.ID, err)
	}

	stamp(&rule.CreatedAt, &rule.UpdatedAt)

	rr.p.mu.Lock()
	defer rr.p.mu.Unlock()

	return writeJSON(path, rule)
}

func (rr *RuleRepository) GetByID(_ context.Context, tenantID, id string) (*models.AutomationRule, error) {
	path, err := rr.p.path("rules", tenantID, id+".json")
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "rule", tenantID, id, persistence.ErrRuleNotFound)
	}

	rr.p.mu.RLock()
	defer rr.p.mu.RUnlock()

	var rule models.AutomationRule

	found, err := readJSON(path, &rule)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "rule", tenantID, id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "rule", tenantID, id, persistence.ErrRuleNotFound)
	}

	return &rule, nil
}

func (rr *RuleRepository) all(tenantID string) ([]*models.AutomationRule, error) {
	dir, err := rr.p.path("rules", tenantID)
	if err != nil {
		return nil, err
	}

	rr.p.mu.RLock()
	defer rr.p.mu.RUnlock()

	return listJSON[models.AutomationRule](dir)
}

// List returns paginated and filtered rules with in-memory operations.
func (rr *RuleRepository) List(_ context.Context, opts persistence.ListRulesOptions) (*persistence.RuleListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
		"priority":   true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	rules, err := rr.all(opts.TenantID)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.AutomationRule, 0, len(rules))

	for _, rule := range rules {
		if opts.Status != nil && rule.Status != *opts.Status {
			continue
		}

		if opts.TriggerType != "" && rule.Trigger.Type != opts.TriggerType {
			continue
		}

		filtered = append(filtered, rule)
	}

	sortRules(filtered, opts.SortBy, opts.SortOrder)

	start, end, hasNext := paginate(len(filtered), opts.Offset, opts.Limit)

	return &persistence.RuleListResult{
		Rules:       filtered[start:end],
		TotalCount:  int64(len(filtered)),
		HasNextPage: hasNext,
	}, nil
}

func sortRules(rules []*models.AutomationRule, sortBy, sortOrder string) {
	sort.SliceStable(rules, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = rules[i].UpdatedAt.Before(rules[j].UpdatedAt)
		case "name":
			less = rules[i].Name < rules[j].Name
		case "priority":
			less = rules[i].Priority < rules[j].Priority
		default:
			less = rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

func (rr *RuleRepository) ListActive(_ context.Context, tenantID string) ([]*models.AutomationRule, error) {
	rules, err := rr.all(tenantID)
	if err != nil {
		return nil, err
	}

	active := make([]*models.AutomationRule, 0, len(rules))

	for _, rule := range rules {
		if rule.IsActive() {
			active = append(active, rule)
		}
	}

	return active, nil
}

func (rr *RuleRepository) Delete(_ context.Context, tenantID, id string) error {
	path, err := rr.p.path("rules", tenantID, id+".json")
	if err != nil {
		return persistence.NewRecordError("Delete", "rule", tenantID, id, persistence.ErrRuleNotFound)
	}

	rr.p.mu.Lock()
	defer rr.p.mu.Unlock()

	removed, err := removeFile(path)
	if err != nil {
		return persistence.NewRecordError("Delete", "rule", tenantID, id, err)
	}

	if !removed {
		return persistence.NewRecordError("Delete", "rule", tenantID, id, persistence.ErrRuleNotFound)
	}

	return nil
}

func (rr *RuleRepository) SaveVersion(_ context.Context, version *models.RuleVersion) error {
	tenantID := ""
	if version.Snapshot != nil {
		tenantID = version.Snapshot.TenantID
	}

	path, err := rr.p.path("rule_versions", tenantID, version.RuleID, strconv.Itoa(version.Version)+".json")
	if err != nil {
		return persistence.NewRecordError("SaveVersion", "rule", tenantID, version.RuleID, err)
	}

	rr.p.mu.Lock()
	defer rr.p.mu.Unlock()

	return writeJSON(path, version)
}

func (rr *RuleRepository) Versions(_ context.Context, tenantID, ruleID string) ([]*models.RuleVersion, error) {
	dir, err := rr.p.path("rule_versions", tenantID, ruleID)
	if err != nil {
		return nil, persistence.NewRecordError("Versions", "rule", tenantID, ruleID, err)
	}

	rr.p.mu.RLock()
	defer rr.p.mu.RUnlock()

	versions, err := listJSON[models.RuleVersion](dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })

	return versions, nil
}

func (rr *RuleRepository) ActiveTenants(ctx context.Context) ([]string, error) {
	tenants, err := subdirs(filepath.Join(rr.p.root, "rules"))
	if err != nil {
		return nil, err
	}

	active := make([]string, 0, len(tenants))

	for _, tenantID := range tenants {
		rules, err := rr.ListActive(ctx, tenantID)
		if err != nil {
			return nil, err
		}

		if len(rules) > 0 {
			active = append(active, tenantID)
		}
	}

	sort.Strings(active)

	return active, nil
}
