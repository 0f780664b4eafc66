package models

import (
	"errors"
	"time"
)

var ErrTemplateNameRequired = errors.New("template name is required")

// AutomationTemplate is a reusable rule blueprint published to the marketplace.
// An empty TenantID marks a public template visible to every tenant.
type AutomationTemplate struct {
	ID           string            `json:"id"`
	TenantID     string            `json:"tenant_id,omitempty"`
	Name         string            `json:"name"        validate:"required,min=3"`
	Description  string            `json:"description"`
	Category     string            `json:"category"`
	Trigger      Trigger           `json:"trigger"`
	Action       Action            `json:"action"`
	Conditions   ConditionGroup    `json:"conditions"`
	Priority     int               `json:"priority"`
	Tags         []string          `json:"tags,omitempty"`
	InstallCount int               `json:"install_count"`
	RatingSum    int               `json:"rating_sum"`
	RatingCount  int               `json:"rating_count"`
	Version      int               `json:"version"`
	Versions     []TemplateVersion `json:"versions,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TemplateVersion is an immutable snapshot of a template's rule definition.
type TemplateVersion struct {
	Version     int            `json:"version"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Trigger     Trigger        `json:"trigger"`
	Action      Action         `json:"action"`
	Conditions  ConditionGroup `json:"conditions"`
	Priority    int            `json:"priority"`
	Tags        []string       `json:"tags,omitempty"`
	Note        string         `json:"note,omitempty"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IsPublic reports whether the template is visible to all tenants.
func (t *AutomationTemplate) IsPublic() bool {
	return t.TenantID == ""
}

// VisibleTo reports whether tenantID may read the template.
func (t *AutomationTemplate) VisibleTo(tenantID string) bool {
	return t.IsPublic() || t.TenantID == tenantID
}

// AverageRating returns the mean rating or zero when unrated.
func (t *AutomationTemplate) AverageRating() float64 {
	if t.RatingCount == 0 {
		return 0
	}

	return float64(t.RatingSum) / float64(t.RatingCount)
}

// Validate checks the template definition.
func (t *AutomationTemplate) Validate() error {
	if t.Name == "" {
		return ErrTemplateNameRequired
	}

	if err := t.Trigger.Validate(); err != nil {
		return err
	}

	if err := t.Action.Validate(); err != nil {
		return err
	}

	return t.Conditions.Validate()
}

// Snapshot captures the current definition as a version entry.
func (t *AutomationTemplate) Snapshot(note, createdBy string, at time.Time) TemplateVersion {
	return TemplateVersion{
		Version:     t.Version,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Trigger:     t.Trigger.Clone(),
		Action:      t.Action.Clone(),
		Conditions:  t.Conditions.Clone(),
		Priority:    t.Priority,
		Tags:        append([]string(nil), t.Tags...),
		Note:        note,
		CreatedBy:   createdBy,
		CreatedAt:   at,
	}
}

// FindVersion returns the version entry with the given number.
func (t *AutomationTemplate) FindVersion(version int) (TemplateVersion, bool) {
	for _, v := range t.Versions {
		if v.Version == version {
			return v, true
		}
	}

	return TemplateVersion{}, false
}
