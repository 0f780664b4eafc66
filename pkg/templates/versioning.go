// Package templates implements the automation template marketplace: the built-in
// catalog, portable import/export and the immutable version history of templates.
package templates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/dealflow/pkg/models"
)

var (
	ErrVersionNotFound = errors.New("template version not found")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// Definition is the editable part of a template.
type Definition struct {
	Name        string
	Description string
	Category    string
	Trigger     models.Trigger
	Action      models.Action
	Conditions  models.ConditionGroup
	Priority    int
	Tags        []string
}

// Overrides customise a rule created from a template. Zero values keep the template's settings.
type Overrides struct {
	Name     string
	Priority *int
	Status   models.RuleStatus
}

// Publish prepares a new template as version 1 with its initial history entry.
func Publish(template *models.AutomationTemplate, createdBy string, at time.Time) error {
	if err := template.Validate(); err != nil {
		return err
	}

	template.Version = 1
	template.CreatedBy = createdBy
	template.CreatedAt = at
	template.UpdatedAt = at
	template.Versions = []models.TemplateVersion{template.Snapshot("initial version", createdBy, at)}

	return nil
}

// Revise applies def as a new version. Earlier versions are never modified.
func Revise(template *models.AutomationTemplate, def Definition, note, createdBy string, at time.Time) error {
	next := *template
	next.Name = def.Name
	next.Description = def.Description
	next.Category = def.Category
	next.Trigger = def.Trigger.Clone()
	next.Action = def.Action.Clone()
	next.Conditions = def.Conditions.Clone()
	next.Priority = def.Priority
	next.Tags = append([]string(nil), def.Tags...)

	if err := next.Validate(); err != nil {
		return err
	}

	next.Version = latestVersion(template) + 1
	next.UpdatedAt = at
	next.Versions = append(append([]models.TemplateVersion(nil), template.Versions...), next.Snapshot(note, createdBy, at))

	*template = next

	return nil
}

// Rollback restores the definition of an earlier version as a new version.
func Rollback(template *models.AutomationTemplate, version int, createdBy string, at time.Time) error {
	previous, ok := template.FindVersion(version)
	if !ok {
		return fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}

	return Revise(template, DefinitionOf(previous), fmt.Sprintf("rollback to version %d", version), createdBy, at)
}

// DefinitionOf extracts the definition stored in a version entry.
func DefinitionOf(version models.TemplateVersion) Definition {
	return Definition{
		Name:        version.Name,
		Description: version.Description,
		Category:    version.Category,
		Trigger:     version.Trigger,
		Action:      version.Action,
		Conditions:  version.Conditions,
		Priority:    version.Priority,
		Tags:        version.Tags,
	}
}

// Rate adds a 1-5 rating to the template aggregate.
func Rate(template *models.AutomationTemplate, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	template.RatingSum += rating
	template.RatingCount++

	return nil
}

// Instantiate builds an unsaved rule for tenantID from the template's current version.
// Installed rules start paused unless overrides say otherwise.
func Instantiate(template *models.AutomationTemplate, tenantID string, overrides Overrides) *models.AutomationRule {
	rule := &models.AutomationRule{
		TenantID:    tenantID,
		Name:        template.Name,
		Description: template.Description,
		Status:      models.RuleStatusPaused,
		Priority:    template.Priority,
		Trigger:     template.Trigger.Clone(),
		Action:      template.Action.Clone(),
		Conditions:  template.Conditions.Clone(),
	}

	if name := strings.TrimSpace(overrides.Name); name != "" {
		rule.Name = name
	}

	if overrides.Priority != nil {
		rule.Priority = *overrides.Priority
	}

	if overrides.Status != "" {
		rule.Status = overrides.Status
	}

	return rule
}

// FromRule builds an unsaved tenant-private template from an existing rule.
func FromRule(rule *models.AutomationRule, category string, tags []string) *models.AutomationTemplate {
	return &models.AutomationTemplate{
		TenantID:    rule.TenantID,
		Name:        rule.Name,
		Description: rule.Description,
		Category:    category,
		Trigger:     rule.Trigger.Clone(),
		Action:      rule.Action.Clone(),
		Conditions:  rule.Conditions.Clone(),
		Priority:    rule.Priority,
		Tags:        append([]string(nil), tags...),
	}
}

func latestVersion(template *models.AutomationTemplate) int {
	latest := template.Version

	for _, v := range template.Versions {
		if v.Version > latest {
			latest = v.Version
		}
	}

	return latest
}
