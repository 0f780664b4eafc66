package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// TemplateRepository handles marketplace template operations. Public templates have an
// empty tenant_id.
type TemplateRepository struct {
	store
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.AutomationTemplate) error {
	stamp(&template.CreatedAt, &template.UpdatedAt)

	data, err := json.Marshal(template)
	if err != nil {
		return persistence.NewRecordError("Save", "template", template.TenantID, template.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO automation_templates (id, tenant_id, name, category, install_count, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			install_count = EXCLUDED.install_count,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`,
		template.ID,
		template.TenantID,
		template.Name,
		template.Category,
		template.InstallCount,
		data,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRecordError("Save", "template", template.TenantID, template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.AutomationTemplate, error) {
	template, found, err := getDocument[models.AutomationTemplate](ctx, r.store,
		"SELECT data FROM automation_templates WHERE id = $1", id)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "template", "", id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "template", "", id, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

// List returns public templates plus the tenant's own, most installed first.
func (r *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.AutomationTemplate, error) {
	where := []string{"(tenant_id = '' OR tenant_id = $1)"}
	args := []any{opts.TenantID}

	if opts.Category != "" {
		args = append(args, opts.Category)
		where = append(where, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}

	if opts.Tag != "" {
		args = append(args, opts.Tag)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(data->'tags', '[]'::jsonb)) AS tag WHERE lower(tag) = lower($%d))",
			len(args)))
	}

	if opts.Search != "" {
		args = append(args, "%"+opts.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR data->>'description' ILIKE $%d)", len(args), len(args)))
	}

	query := "SELECT data FROM automation_templates WHERE " + strings.Join(where, " AND ") +
		" ORDER BY install_count DESC, name ASC"

	return queryDocuments[models.AutomationTemplate](ctx, r.store, query, args...)
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	deleted, err := exec(ctx, r.store, "DELETE FROM automation_templates WHERE id = $1", id)
	if err != nil {
		return persistence.NewRecordError("Delete", "template", "", id, err)
	}

	if !deleted {
		return persistence.NewRecordError("Delete", "template", "", id, persistence.ErrTemplateNotFound)
	}

	return nil
}
