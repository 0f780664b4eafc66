package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dealflow/pkg/clock"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/templates"
	"github.com/google/uuid"
)

// Templates serves the automation template marketplace.
type Templates struct {
	persistence persistence.Persistence
	rules       *Rules
	clock       clock.Clock
	logger      *slog.Logger
}

func NewTemplates(logger *slog.Logger, p persistence.Persistence, rules *Rules, clk clock.Clock) *Templates {
	return &Templates{
		persistence: p,
		rules:       rules,
		clock:       clk,
		logger:      logger.With("module", "template_service"),
	}
}

// SeedCatalog publishes the built-in catalog. Templates already stored are left untouched.
func (s *Templates) SeedCatalog(ctx context.Context) (int, error) {
	catalog, err := templates.Catalog()
	if err != nil {
		return 0, err
	}

	repo := s.persistence.TemplateRepository()
	seeded := 0

	for _, template := range catalog {
		_, err := repo.GetByID(ctx, template.ID)
		if err == nil {
			continue
		}

		if !persistence.IsTemplateNotFound(err) {
			return seeded, err
		}

		if err := templates.Publish(template, "catalog", s.clock.Now()); err != nil {
			return seeded, err
		}

		if err := repo.Save(ctx, template); err != nil {
			return seeded, fmt.Errorf("failed to seed template %s: %w", template.ID, err)
		}

		seeded++
	}

	s.logger.InfoContext(ctx, "template catalog seeded", "seeded", seeded, "catalog_size", len(catalog))

	return seeded, nil
}

// ListTemplates lists public templates plus the tenant's own.
func (s *Templates) ListTemplates(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.AutomationTemplate, error) {
	if opts.TenantID == "" {
		return nil, ErrEmptyTenantID
	}

	return s.persistence.TemplateRepository().List(ctx, opts)
}

// GetTemplate fetches a template visible to the tenant. Other tenants' templates read as missing.
func (s *Templates) GetTemplate(ctx context.Context, tenantID, id string) (*models.AutomationTemplate, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !template.VisibleTo(tenantID) {
		return nil, persistence.NewRecordError("GetTemplate", "template", tenantID, id, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

// RateTemplate adds a 1-5 rating.
func (s *Templates) RateTemplate(ctx context.Context, tenantID, id string, rating int) (*models.AutomationTemplate, error) {
	template, err := s.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := templates.Rate(template, rating); err != nil {
		return nil, err
	}

	return template, s.save(ctx, template)
}

// InstallTemplate creates a tenant rule from the template's current version.
func (s *Templates) InstallTemplate(ctx context.Context, tenantID, id string, overrides templates.Overrides, installedBy string) (*RuleChange, error) {
	template, err := s.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if overrides.Status != "" && !overrides.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	change, err := s.rules.CreateRule(ctx, templates.Instantiate(template, tenantID, overrides), installedBy)
	if err != nil {
		return nil, err
	}

	template.InstallCount++

	if err := s.save(ctx, template); err != nil {
		s.logger.WarnContext(ctx, "install count not updated", "template_id", id, "error", err)
	}

	s.logger.InfoContext(ctx, "template installed", "tenant_id", tenantID, "template_id", id, "rule_id", change.Rule.ID)

	return change, nil
}

// SaveRuleAsTemplate publishes a tenant-private template from an existing rule.
func (s *Templates) SaveRuleAsTemplate(ctx context.Context, tenantID, ruleID, category string, tags []string, createdBy string) (*models.AutomationTemplate, error) {
	rule, err := s.rules.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}

	template := templates.FromRule(rule, category, tags)

	return s.create(ctx, template, createdBy)
}

// UpdateTemplate revises a tenant-owned template as a new version.
func (s *Templates) UpdateTemplate(ctx context.Context, tenantID, id string, def templates.Definition, note, updatedBy string) (*models.AutomationTemplate, error) {
	template, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := templates.Revise(template, def, note, updatedBy, s.clock.Now()); err != nil {
		return nil, invalid("UpdateTemplate", ErrInvalidTemplate, err)
	}

	return template, s.save(ctx, template)
}

// RollbackTemplate restores an earlier version as a new version.
func (s *Templates) RollbackTemplate(ctx context.Context, tenantID, id string, version int, updatedBy string) (*models.AutomationTemplate, error) {
	template, err := s.owned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if err := templates.Rollback(template, version, updatedBy, s.clock.Now()); err != nil {
		return nil, err
	}

	return template, s.save(ctx, template)
}

// DeleteTemplate removes a tenant-owned template.
func (s *Templates) DeleteTemplate(ctx context.Context, tenantID, id string) error {
	if _, err := s.owned(ctx, tenantID, id); err != nil {
		return err
	}

	return s.persistence.TemplateRepository().Delete(ctx, id)
}

// ExportTemplate renders a visible template in the portable format.
func (s *Templates) ExportTemplate(ctx context.Context, tenantID, id string) (*templates.Portable, error) {
	template, err := s.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	return templates.Export(template, s.clock.Now())
}

// ImportTemplate stores a portable document as a new tenant-private template.
func (s *Templates) ImportTemplate(ctx context.Context, tenantID string, data []byte, importedBy string) (*models.AutomationTemplate, error) {
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	template, err := templates.Import(data, tenantID)
	if err != nil {
		return nil, err
	}

	return s.create(ctx, template, importedBy)
}

func (s *Templates) create(ctx context.Context, template *models.AutomationTemplate, createdBy string) (*models.AutomationTemplate, error) {
	template.ID = uuid.New().String()

	if err := templates.Publish(template, createdBy, s.clock.Now()); err != nil {
		return nil, invalid("CreateTemplate", ErrInvalidTemplate, err)
	}

	if err := s.save(ctx, template); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "template created", "tenant_id", template.TenantID, "template_id", template.ID)

	return template, nil
}

// owned loads a template the tenant may modify. Public templates are read-only.
func (s *Templates) owned(ctx context.Context, tenantID, id string) (*models.AutomationTemplate, error) {
	template, err := s.GetTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if template.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrTemplateReadOnly, id)
	}

	return template, nil
}

func (s *Templates) save(ctx context.Context, template *models.AutomationTemplate) error {
	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}
