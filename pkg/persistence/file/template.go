package file

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
)

// TemplateRepository stores marketplace templates under templates/<id>.json.
type TemplateRepository struct {
	p *Persistence
}

func (tr *TemplateRepository) Save(_ context.Context, template *models.AutomationTemplate) error {
	path, err := tr.p.path("templates", template.ID+".json")
	if err != nil {
		return persistence.NewRecordError("Save", "template", template.TenantID, template.ID, err)
	}

	stamp(&template.CreatedAt, &template.UpdatedAt)

	tr.p.mu.Lock()
	defer tr.p.mu.Unlock()

	return writeJSON(path, template)
}

func (tr *TemplateRepository) GetByID(_ context.Context, id string) (*models.AutomationTemplate, error) {
	path, err := tr.p.path("templates", id+".json")
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "template", "", id, persistence.ErrTemplateNotFound)
	}

	tr.p.mu.RLock()
	defer tr.p.mu.RUnlock()

	var template models.AutomationTemplate

	found, err := readJSON(path, &template)
	if err != nil {
		return nil, persistence.NewRecordError("GetByID", "template", "", id, err)
	}

	if !found {
		return nil, persistence.NewRecordError("GetByID", "template", "", id, persistence.ErrTemplateNotFound)
	}

	return &template, nil
}

// List returns public templates plus the tenant's own, most installed first.
func (tr *TemplateRepository) List(_ context.Context, opts persistence.ListTemplatesOptions) ([]*models.AutomationTemplate, error) {
	tr.p.mu.RLock()
	templates, err := listJSON[models.AutomationTemplate](filepath.Join(tr.p.root, "templates"))
	tr.p.mu.RUnlock()

	if err != nil {
		return nil, err
	}

	filtered := make([]*models.AutomationTemplate, 0, len(templates))

	for _, template := range templates {
		if MatchesTemplate(template, opts) {
			filtered = append(filtered, template)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].InstallCount != filtered[j].InstallCount {
			return filtered[i].InstallCount > filtered[j].InstallCount
		}

		return filtered[i].Name < filtered[j].Name
	})

	return filtered, nil
}

// MatchesTemplate applies the visibility, category, tag and search filters.
func MatchesTemplate(template *models.AutomationTemplate, opts persistence.ListTemplatesOptions) bool {
	if !template.VisibleTo(opts.TenantID) {
		return false
	}

	if opts.Category != "" && !strings.EqualFold(template.Category, opts.Category) {
		return false
	}

	if opts.Tag != "" && !hasTag(template.Tags, opts.Tag) {
		return false
	}

	if opts.Search != "" {
		needle := strings.ToLower(opts.Search)
		if !strings.Contains(strings.ToLower(template.Name), needle) &&
			!strings.Contains(strings.ToLower(template.Description), needle) {
			return false
		}
	}

	return true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}

	return false
}

func (tr *TemplateRepository) Delete(_ context.Context, id string) error {
	path, err := tr.p.path("templates", id+".json")
	if err != nil {
		return persistence.NewRecordError("Delete", "template", "", id, persistence.ErrTemplateNotFound)
	}

	tr.p.mu.Lock()
	defer tr.p.mu.Unlock()

	removed, err := removeFile(path)
	if err != nil {
		return persistence.NewRecordError("Delete", "template", "", id, err)
	}

	if !removed {
		return persistence.NewRecordError("Delete", "template", "", id, persistence.ErrTemplateNotFound)
	}

	return nil
}
