package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActionType is the side effect applied when a rule fires.
type ActionType string

const (
	ActionMoveStage        ActionType = "move_stage"
	ActionSendNotification ActionType = "send_notification"
	ActionCreateTask       ActionType = "create_task"
	ActionEnrollSequence   ActionType = "enroll_sequence"
	ActionUpdateField      ActionType = "update_field"
)

// ActionTypes lists every supported action type.
var ActionTypes = []ActionType{
	ActionMoveStage,
	ActionSendNotification,
	ActionCreateTask,
	ActionEnrollSequence,
	ActionUpdateField,
}

var (
	ErrUnknownActionType   = errors.New("unknown action type")
	ErrInvalidActionConfig = errors.New("invalid action config")
)

// UpdateType selects how an update_field action mutates the entity.
type UpdateType string

const (
	UpdateTypeField UpdateType = "field"
	UpdateTypeTag   UpdateType = "tag"
	UpdateTypeScore UpdateType = "score"
)

// Score bounds for update_field score deltas.
const (
	MinScore = 0
	MaxScore = 100
)

// ActionConfig is the per-type payload of an action.
type ActionConfig interface {
	ActionType() ActionType
	Validate() error
}

// MoveStageConfig moves a deal to ToStage.
type MoveStageConfig struct {
	ToStage string `json:"toStage"`
}

// SendNotificationConfig sends a notification to a user or channel.
type SendNotificationConfig struct {
	Channel   string `json:"channel,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message"`
}

// CreateTaskConfig creates a follow-up task linked to the entity.
type CreateTaskConfig struct {
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	Assignee  string `json:"assignee,omitempty"`
	DueInDays int    `json:"dueInDays,omitempty"`
	Priority  string `json:"priority,omitempty"`
}

// EnrollSequenceConfig enrolls the entity into an outreach workflow.
type EnrollSequenceConfig struct {
	WorkflowID string `json:"workflowId"`
}

// UpdateFieldConfig mutates a field, appends a tag or adds a delta to the score.
type UpdateFieldConfig struct {
	UpdateType UpdateType `json:"updateType"`
	Field      string     `json:"field,omitempty"`
	Value      any        `json:"value,omitempty"`
	Tag        string     `json:"tag,omitempty"`
	Delta      float64    `json:"delta,omitempty"`
}

func (MoveStageConfig) ActionType() ActionType        { return ActionMoveStage }
func (SendNotificationConfig) ActionType() ActionType { return ActionSendNotification }
func (CreateTaskConfig) ActionType() ActionType       { return ActionCreateTask }
func (EnrollSequenceConfig) ActionType() ActionType   { return ActionEnrollSequence }
func (UpdateFieldConfig) ActionType() ActionType      { return ActionUpdateField }

func (c MoveStageConfig) Validate() error {
	if strings.TrimSpace(c.ToStage) == "" {
		return fmt.Errorf("%w: toStage is required", ErrInvalidActionConfig)
	}

	return nil
}

func (c SendNotificationConfig) Validate() error {
	if strings.TrimSpace(c.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidActionConfig)
	}

	return nil
}

func (c CreateTaskConfig) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidActionConfig)
	}

	if c.DueInDays < 0 {
		return fmt.Errorf("%w: dueInDays cannot be negative", ErrInvalidActionConfig)
	}

	return nil
}

func (c EnrollSequenceConfig) Validate() error {
	if strings.TrimSpace(c.WorkflowID) == "" {
		return fmt.Errorf("%w: workflowId is required", ErrInvalidActionConfig)
	}

	return nil
}

func (c UpdateFieldConfig) Validate() error {
	switch c.UpdateType {
	case UpdateTypeField:
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("%w: field is required for field updates", ErrInvalidActionConfig)
		}
	case UpdateTypeTag:
		if strings.TrimSpace(c.Tag) == "" {
			return fmt.Errorf("%w: tag is required for tag updates", ErrInvalidActionConfig)
		}
	case UpdateTypeScore:
		if c.Delta == 0 {
			return fmt.Errorf("%w: delta is required for score updates", ErrInvalidActionConfig)
		}
	default:
		return fmt.Errorf("%w: unknown updateType %q", ErrInvalidActionConfig, c.UpdateType)
	}

	return nil
}

// NewActionConfig returns an empty config value for the given action type.
func NewActionConfig(actionType ActionType) (ActionConfig, error) {
	switch actionType {
	case ActionMoveStage:
		return &MoveStageConfig{}, nil
	case ActionSendNotification:
		return &SendNotificationConfig{}, nil
	case ActionCreateTask:
		return &CreateTaskConfig{}, nil
	case ActionEnrollSequence:
		return &EnrollSequenceConfig{}, nil
	case ActionUpdateField:
		return &UpdateFieldConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}
}

// DecodeActionConfig decodes raw JSON into the config variant for actionType.
func DecodeActionConfig(actionType ActionType, raw json.RawMessage) (ActionConfig, error) {
	config, err := NewActionConfig(actionType)
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidActionConfig, err)
		}
	}

	return config, nil
}

// Action is a tagged variant: Type selects which Config struct is carried.
type Action struct {
	Type   ActionType
	Config ActionConfig
}

// NewAction builds a validated action from a config variant. The stored config is always a pointer.
func NewAction(config ActionConfig) (Action, error) {
	action := Action{Type: config.ActionType(), Config: config}.Clone()

	return action, action.Validate()
}

// Validate checks that the config variant agrees with Type and is well formed.
func (a Action) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("%w: action type is required", ErrInvalidActionConfig)
	}

	if a.Config == nil {
		return fmt.Errorf("%w: missing config for %s", ErrInvalidActionConfig, a.Type)
	}

	if a.Config.ActionType() != a.Type {
		return fmt.Errorf("%w: config for %s given to %s action", ErrInvalidActionConfig, a.Config.ActionType(), a.Type)
	}

	return a.Config.Validate()
}

// Clone copies the action config.
func (a Action) Clone() Action {
	if a.Config == nil {
		return a
	}

	raw, err := json.Marshal(a.Config)
	if err != nil {
		return a
	}

	config, err := DecodeActionConfig(a.Type, raw)
	if err != nil {
		return a
	}

	return Action{Type: a.Type, Config: config}
}

type actionJSON struct {
	Type   ActionType      `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage

	if a.Config != nil {
		data, err := json.Marshal(a.Config)
		if err != nil {
			return nil, err
		}

		raw = data
	}

	return json.Marshal(actionJSON{Type: a.Type, Config: raw})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var wire actionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	if wire.Type == "" {
		*a = Action{}

		return nil
	}

	config, err := DecodeActionConfig(wire.Type, wire.Config)
	if err != nil {
		return err
	}

	a.Type = wire.Type
	a.Config = config

	return nil
}

// MoveStage returns the move_stage config when the action carries one.
func (a Action) MoveStage() (*MoveStageConfig, bool) {
	c, ok := a.Config.(*MoveStageConfig)

	return c, ok
}
