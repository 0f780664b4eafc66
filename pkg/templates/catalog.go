package templates

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/dukex/dealflow/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Templates []catalogEntry `yaml:"templates"`
}

type catalogEntry struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Category    string         `yaml:"category"`
	Tags        []string       `yaml:"tags"`
	Priority    int            `yaml:"priority"`
	Trigger     catalogVariant `yaml:"trigger"`
	Action      catalogVariant `yaml:"action"`
	Conditions  map[string]any `yaml:"conditions"`
}

type catalogVariant struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// Catalog returns the built-in public templates, unpublished and without history.
func Catalog() ([]*models.AutomationTemplate, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// ParseCatalog decodes a YAML template catalog. Every entry must validate.
func ParseCatalog(data []byte) ([]*models.AutomationTemplate, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}

	templates := make([]*models.AutomationTemplate, 0, len(file.Templates))
	seen := make(map[string]bool, len(file.Templates))

	for _, entry := range file.Templates {
		if entry.ID == "" {
			return nil, fmt.Errorf("catalog template %q has no id", entry.Name)
		}

		if seen[entry.ID] {
			return nil, fmt.Errorf("duplicate catalog template id %q", entry.ID)
		}

		seen[entry.ID] = true

		template, err := entry.template()
		if err != nil {
			return nil, fmt.Errorf("catalog template %s: %w", entry.ID, err)
		}

		templates = append(templates, template)
	}

	return templates, nil
}

func (e catalogEntry) template() (*models.AutomationTemplate, error) {
	trigger, err := decodeTrigger(models.TriggerType(e.Trigger.Type), e.Trigger.Config)
	if err != nil {
		return nil, err
	}

	action, err := decodeAction(models.ActionType(e.Action.Type), e.Action.Config)
	if err != nil {
		return nil, err
	}

	var conditions models.ConditionGroup
	if err := remarshal(e.Conditions, &conditions); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCondition, err)
	}

	template := &models.AutomationTemplate{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Category:    e.Category,
		Trigger:     trigger,
		Action:      action,
		Conditions:  conditions,
		Priority:    e.Priority,
		Tags:        e.Tags,
	}

	if err := template.Validate(); err != nil {
		return nil, err
	}

	return template, nil
}

func decodeTrigger(triggerType models.TriggerType, config any) (models.Trigger, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return models.Trigger{}, fmt.Errorf("%w: %v", models.ErrInvalidTriggerConfig, err)
	}

	decoded, err := models.DecodeTriggerConfig(triggerType, raw)
	if err != nil {
		return models.Trigger{}, err
	}

	trigger := models.Trigger{Type: triggerType, Config: decoded}

	return trigger, trigger.Validate()
}

func decodeAction(actionType models.ActionType, config any) (models.Action, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return models.Action{}, fmt.Errorf("%w: %v", models.ErrInvalidActionConfig, err)
	}

	decoded, err := models.DecodeActionConfig(actionType, raw)
	if err != nil {
		return models.Action{}, err
	}

	action := models.Action{Type: actionType, Config: decoded}

	return action, action.Validate()
}

func remarshal(in, out any) error {
	if in == nil {
		return nil
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}
