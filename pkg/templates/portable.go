package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidImport = errors.New("invalid template import")

// Portable is the flat JSON form templates are exported to and imported from.
type Portable struct {
	Name          string                `json:"name"`
	Description   string                `json:"description,omitempty"`
	Category      string                `json:"category,omitempty"`
	TriggerType   models.TriggerType    `json:"triggerType"`
	TriggerConfig json.RawMessage       `json:"triggerConfig,omitempty"`
	ActionType    models.ActionType     `json:"actionType"`
	ActionConfig  json.RawMessage       `json:"actionConfig,omitempty"`
	Conditions    models.ConditionGroup `json:"conditions"`
	Priority      int                   `json:"priority"`
	Tags          []string              `json:"tags,omitempty"`
	ExportedAt    time.Time             `json:"exportedAt"`
}

var portableSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "triggerType", "actionType"},
	"properties": map[string]any{
		"name":          map[string]any{"type": "string", "minLength": 1},
		"description":   map[string]any{"type": "string"},
		"category":      map[string]any{"type": "string"},
		"triggerType":   map[string]any{"type": "string", "minLength": 1},
		"triggerConfig": map[string]any{"type": []any{"object", "null"}},
		"actionType":    map[string]any{"type": "string", "minLength": 1},
		"actionConfig":  map[string]any{"type": []any{"object", "null"}},
		"conditions":    map[string]any{"type": []any{"object", "null"}},
		"priority":      map[string]any{"type": "integer"},
		"tags": map[string]any{
			"type":  []any{"array", "null"},
			"items": map[string]any{"type": "string"},
		},
		"exportedAt": map[string]any{"type": "string"},
	},
}

// Export converts a template to its portable form.
func Export(template *models.AutomationTemplate, at time.Time) (*Portable, error) {
	triggerConfig, err := json.Marshal(template.Trigger.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	actionConfig, err := json.Marshal(template.Action.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action config: %w", err)
	}

	return &Portable{
		Name:          template.Name,
		Description:   template.Description,
		Category:      template.Category,
		TriggerType:   template.Trigger.Type,
		TriggerConfig: triggerConfig,
		ActionType:    template.Action.Type,
		ActionConfig:  actionConfig,
		Conditions:    template.Conditions.Clone(),
		Priority:      template.Priority,
		Tags:          append([]string(nil), template.Tags...),
		ExportedAt:    at.UTC(),
	}, nil
}

// Import parses a portable document into an unsaved template owned by tenantID.
func Import(data []byte, tenantID string) (*models.AutomationTemplate, error) {
	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	if err := validateSchema(document); err != nil {
		return nil, err
	}

	var portable Portable
	if err := json.Unmarshal(data, &portable); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	trigger, err := portableTrigger(portable.TriggerType, portable.TriggerConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	action, err := portableAction(portable.ActionType, portable.ActionConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	template := &models.AutomationTemplate{
		TenantID:    tenantID,
		Name:        portable.Name,
		Description: portable.Description,
		Category:    portable.Category,
		Trigger:     trigger,
		Action:      action,
		Conditions:  portable.Conditions,
		Priority:    portable.Priority,
		Tags:        portable.Tags,
	}

	if err := template.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}

	return template, nil
}

func portableTrigger(triggerType models.TriggerType, raw json.RawMessage) (models.Trigger, error) {
	config, err := models.DecodeTriggerConfig(triggerType, raw)
	if err != nil {
		return models.Trigger{}, err
	}

	return models.Trigger{Type: triggerType, Config: config}, nil
}

func portableAction(actionType models.ActionType, raw json.RawMessage) (models.Action, error) {
	config, err := models.DecodeActionConfig(actionType, raw)
	if err != nil {
		return models.Action{}, err
	}

	return models.Action{Type: actionType, Config: config}, nil
}

func validateSchema(document any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(portableSchema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidImport, strings.Join(messages, "; "))
	}

	return nil
}
