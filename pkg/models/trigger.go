package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerType is the CRM event class that makes a rule eligible for evaluation.
type TriggerType string

const (
	TriggerEmailOpened        TriggerType = "email_opened"
	TriggerEmailReplied       TriggerType = "email_replied"
	TriggerNoReplyAfterDays   TriggerType = "no_reply_after_days"
	TriggerMeetingHeld        TriggerType = "meeting_held"
	TriggerStageEntered       TriggerType = "stage_entered"
	TriggerDealValueThreshold TriggerType = "deal_value_threshold"
	TriggerScheduled          TriggerType = "scheduled"
)

// TriggerTypes lists every supported trigger type.
var TriggerTypes = []TriggerType{
	TriggerEmailOpened,
	TriggerEmailReplied,
	TriggerNoReplyAfterDays,
	TriggerMeetingHeld,
	TriggerStageEntered,
	TriggerDealValueThreshold,
	TriggerScheduled,
}

var (
	ErrUnknownTriggerType   = errors.New("unknown trigger type")
	ErrInvalidTriggerConfig = errors.New("invalid trigger config")
)

// TimeBased reports whether the trigger is evaluated by the periodic sweep rather than by a single event.
func (t TriggerType) TimeBased() bool {
	return t == TriggerNoReplyAfterDays || t == TriggerScheduled
}

// TriggerConfig is the per-type payload of a trigger.
type TriggerConfig interface {
	TriggerType() TriggerType
	Validate() error
}

// EmailOpenedConfig carries no parameters.
type EmailOpenedConfig struct{}

// EmailRepliedConfig carries no parameters.
type EmailRepliedConfig struct{}

// MeetingHeldConfig carries no parameters.
type MeetingHeldConfig struct{}

// NoReplyAfterDaysConfig fires once the last outbound contact is Days old without a reply.
type NoReplyAfterDaysConfig struct {
	Days int `json:"days"`
}

// StageEnteredConfig fires on a stage transition. An empty FromStage means any origin stage,
// an empty ToStage means any destination stage.
type StageEnteredConfig struct {
	FromStage string `json:"fromStage,omitempty"`
	ToStage   string `json:"toStage,omitempty"`
}

// DealValueThresholdConfig fires the first time a deal value reaches Threshold.
type DealValueThresholdConfig struct {
	Threshold float64 `json:"threshold"`
}

// ScheduledConfig fires once per occurrence of a five-field cron expression evaluated in Timezone.
type ScheduledConfig struct {
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"`
}

func (EmailOpenedConfig) TriggerType() TriggerType        { return TriggerEmailOpened }
func (EmailRepliedConfig) TriggerType() TriggerType       { return TriggerEmailReplied }
func (MeetingHeldConfig) TriggerType() TriggerType        { return TriggerMeetingHeld }
func (NoReplyAfterDaysConfig) TriggerType() TriggerType   { return TriggerNoReplyAfterDays }
func (StageEnteredConfig) TriggerType() TriggerType       { return TriggerStageEntered }
func (DealValueThresholdConfig) TriggerType() TriggerType { return TriggerDealValueThreshold }
func (ScheduledConfig) TriggerType() TriggerType          { return TriggerScheduled }

func (EmailOpenedConfig) Validate() error  { return nil }
func (EmailRepliedConfig) Validate() error { return nil }
func (MeetingHeldConfig) Validate() error  { return nil }

func (c NoReplyAfterDaysConfig) Validate() error {
	if c.Days <= 0 {
		return fmt.Errorf("%w: days must be greater than zero", ErrInvalidTriggerConfig)
	}

	return nil
}

func (c StageEnteredConfig) Validate() error {
	if c.FromStage != "" && c.FromStage == c.ToStage {
		return fmt.Errorf("%w: fromStage and toStage must differ", ErrInvalidTriggerConfig)
	}

	return nil
}

func (c DealValueThresholdConfig) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be greater than zero", ErrInvalidTriggerConfig)
	}

	return nil
}

func (c ScheduledConfig) Validate() error {
	if c.Cron == "" {
		return fmt.Errorf("%w: cron expression is required", ErrInvalidTriggerConfig)
	}

	if _, err := c.Schedule(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTriggerConfig, err)
	}

	return nil
}

// Location resolves the configured timezone, defaulting to UTC.
func (c ScheduledConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}

	return time.LoadLocation(c.Timezone)
}

// Schedule parses the cron expression bound to the configured timezone.
func (c ScheduledConfig) Schedule() (cron.Schedule, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(c.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
	}

	if spec, ok := schedule.(*cron.SpecSchedule); ok {
		spec.Location = loc
	}

	return schedule, nil
}

// NewTriggerConfig returns an empty config value for the given trigger type.
func NewTriggerConfig(triggerType TriggerType) (TriggerConfig, error) {
	switch triggerType {
	case TriggerEmailOpened:
		return &EmailOpenedConfig{}, nil
	case TriggerEmailReplied:
		return &EmailRepliedConfig{}, nil
	case TriggerMeetingHeld:
		return &MeetingHeldConfig{}, nil
	case TriggerNoReplyAfterDays:
		return &NoReplyAfterDaysConfig{}, nil
	case TriggerStageEntered:
		return &StageEnteredConfig{}, nil
	case TriggerDealValueThreshold:
		return &DealValueThresholdConfig{}, nil
	case TriggerScheduled:
		return &ScheduledConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTriggerType, triggerType)
	}
}

// DecodeTriggerConfig decodes raw JSON into the config variant for triggerType.
func DecodeTriggerConfig(triggerType TriggerType, raw json.RawMessage) (TriggerConfig, error) {
	config, err := NewTriggerConfig(triggerType)
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTriggerConfig, err)
		}
	}

	return config, nil
}

// Trigger is a tagged variant: Type selects which Config struct is carried.
type Trigger struct {
	Type   TriggerType
	Config TriggerConfig
}

// NewTrigger builds a validated trigger from a config variant. Value and pointer
// configs are both accepted; the stored config is always a pointer.
func NewTrigger(config TriggerConfig) (Trigger, error) {
	trigger := Trigger{Type: config.TriggerType(), Config: config}.Clone()

	return trigger, trigger.Validate()
}

// Validate checks that the config variant agrees with Type and is well formed.
func (t Trigger) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("%w: trigger type is required", ErrInvalidTriggerConfig)
	}

	if t.Config == nil {
		return fmt.Errorf("%w: missing config for %s", ErrInvalidTriggerConfig, t.Type)
	}

	if t.Config.TriggerType() != t.Type {
		return fmt.Errorf("%w: config for %s given to %s trigger", ErrInvalidTriggerConfig, t.Config.TriggerType(), t.Type)
	}

	return t.Config.Validate()
}

// Clone copies the trigger config.
func (t Trigger) Clone() Trigger {
	if t.Config == nil {
		return t
	}

	raw, err := json.Marshal(t.Config)
	if err != nil {
		return t
	}

	config, err := DecodeTriggerConfig(t.Type, raw)
	if err != nil {
		return t
	}

	return Trigger{Type: t.Type, Config: config}
}

type triggerJSON struct {
	Type   TriggerType     `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

func (t Trigger) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage

	if t.Config != nil {
		data, err := json.Marshal(t.Config)
		if err != nil {
			return nil, err
		}

		raw = data
	}

	return json.Marshal(triggerJSON{Type: t.Type, Config: raw})
}

func (t *Trigger) UnmarshalJSON(data []byte) error {
	var wire triggerJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	if wire.Type == "" {
		*t = Trigger{}

		return nil
	}

	config, err := DecodeTriggerConfig(wire.Type, wire.Config)
	if err != nil {
		return err
	}

	t.Type = wire.Type
	t.Config = config

	return nil
}

// StageEntered returns the stage_entered config when the trigger carries one.
func (t Trigger) StageEntered() (*StageEnteredConfig, bool) {
	c, ok := t.Config.(*StageEnteredConfig)

	return c, ok
}

// NoReplyAfterDays returns the no_reply_after_days config when the trigger carries one.
func (t Trigger) NoReplyAfterDays() (*NoReplyAfterDaysConfig, bool) {
	c, ok := t.Config.(*NoReplyAfterDaysConfig)

	return c, ok
}

// DealValueThreshold returns the deal_value_threshold config when the trigger carries one.
func (t Trigger) DealValueThreshold() (*DealValueThresholdConfig, bool) {
	c, ok := t.Config.(*DealValueThresholdConfig)

	return c, ok
}

// Scheduled returns the scheduled config when the trigger carries one.
func (t Trigger) Scheduled() (*ScheduledConfig, bool) {
	c, ok := t.Config.(*ScheduledConfig)

	return c, ok
}
