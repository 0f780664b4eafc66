package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/dealflow/pkg/conditions"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/triggers"
)

const maxSampleEntities = 10

// Simulation is the result of a dry run.
type Simulation struct {
	Evaluated     int      `json:"evaluated"`
	AffectedCount int      `json:"affected_count"`
	SampleIDs     []string `json:"sample_entity_ids,omitempty"`
	Description   string   `json:"description"`
}

// Simulate counts the stored entities the rule would act on right now. It runs the trigger
// matcher against a synthetic event per entity and evaluates the conditions, without
// executing actions or recording executions.
func (d *Dispatcher) Simulate(ctx context.Context, rule *models.AutomationRule) (*Simulation, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	trial := rule.Clone()
	trial.Status = models.RuleStatusActive

	simulation := &Simulation{Description: Describe(rule)}
	now := d.clock.Now()

	for _, entityType := range EntityTypesFor(rule.Trigger.Type) {
		entities, err := d.entities.ListEntities(ctx, rule.TenantID, entityType)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s entities: %w", entityType, err)
		}

		for _, entity := range entities {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			simulation.Evaluated++

			ok, err := d.wouldFire(ctx, trial, entity, now)
			if err != nil {
				return nil, err
			}

			if !ok {
				continue
			}

			simulation.AffectedCount++
			if len(simulation.SampleIDs) < maxSampleEntities {
				simulation.SampleIDs = append(simulation.SampleIDs, entity.ID)
			}
		}
	}

	return simulation, nil
}

func (d *Dispatcher) wouldFire(ctx context.Context, rule *models.AutomationRule, entity *models.Entity, now time.Time) (bool, error) {
	snapshot := entity.Snapshot()
	event := &models.CRMEvent{
		ID:         "dry-run",
		TenantID:   rule.TenantID,
		EntityType: entity.Type,
		EntityID:   entity.ID,
		OccurredAt: now,
		Payload:    map[string]any{models.PayloadEntity: snapshot},
	}

	var history triggers.History

	switch rule.Trigger.Type {
	case models.TriggerScheduled:
		// Every entity passing the conditions is acted on at the next occurrence.
		return conditions.Evaluate(rule.Conditions, snapshot), nil
	case models.TriggerStageEntered:
		config, _ := rule.Trigger.StageEntered()
		event.Type = models.EventStageChanged
		event.WithPayload(models.PayloadToStage, entity.Stage())
		event.WithPayload(models.PayloadFromStage, config.FromStage)
	case models.TriggerDealValueThreshold:
		event.Type = models.EventDealValueChanged
		if value, ok := snapshot.Float(models.FieldDealValue); ok {
			event.WithPayload(models.PayloadDealValue, value)
		}
	case models.TriggerNoReplyAfterDays:
		event.Type = models.EventScheduleTick

		latest, err := d.executions.LatestForEntity(ctx, rule.TenantID, entity.Ref())
		if err != nil {
			return false, err
		}

		history.LastExecutedAt = latest
	case models.TriggerEmailOpened:
		event.Type = models.EventEmailOpened
	case models.TriggerEmailReplied:
		event.Type = models.EventEmailReplied
	case models.TriggerMeetingHeld:
		event.Type = models.EventMeetingHeld
	}

	if !d.matcher.Matches(rule, event, history) {
		return false, nil
	}

	return conditions.Evaluate(rule.Conditions, snapshot), nil
}

// EntityTypesFor lists the entity types a trigger type can fire for.
func EntityTypesFor(triggerType models.TriggerType) []string {
	switch triggerType {
	case models.TriggerStageEntered, models.TriggerDealValueThreshold:
		return []string{models.EntityTypeDeal}
	default:
		return []string{models.EntityTypeContact, models.EntityTypeDeal}
	}
}

// Describe renders a rule as a short sentence.
func Describe(rule *models.AutomationRule) string {
	var b strings.Builder

	b.WriteString("When ")
	b.WriteString(describeTrigger(rule.Trigger))

	if cond := describeGroup(rule.Conditions); cond != "" {
		b.WriteString(" and ")
		b.WriteString(cond)
	}

	b.WriteString(", ")
	b.WriteString(describeAction(rule.Action))

	return b.String()
}

func describeTrigger(trigger models.Trigger) string {
	switch trigger.Type {
	case models.TriggerEmailOpened:
		return "an email is opened"
	case models.TriggerEmailReplied:
		return "an email is replied to"
	case models.TriggerMeetingHeld:
		return "a meeting is held"
	case models.TriggerNoReplyAfterDays:
		config, ok := trigger.NoReplyAfterDays()
		if !ok {
			return string(trigger.Type)
		}

		return fmt.Sprintf("there is no reply %d days after the last email", config.Days)
	case models.TriggerStageEntered:
		config, ok := trigger.StageEntered()
		if !ok {
			return string(trigger.Type)
		}

		switch {
		case config.FromStage != "" && config.ToStage != "":
			return fmt.Sprintf("a deal moves from %q to %q", config.FromStage, config.ToStage)
		case config.ToStage != "":
			return fmt.Sprintf("a deal enters %q", config.ToStage)
		default:
			return "a deal changes stage"
		}
	case models.TriggerDealValueThreshold:
		config, ok := trigger.DealValueThreshold()
		if !ok {
			return string(trigger.Type)
		}

		return fmt.Sprintf("a deal value reaches %g", config.Threshold)
	case models.TriggerScheduled:
		config, ok := trigger.Scheduled()
		if !ok {
			return string(trigger.Type)
		}

		tz := config.Timezone
		if tz == "" {
			tz = "UTC"
		}

		return fmt.Sprintf("the schedule %q fires (%s)", config.Cron, tz)
	default:
		return string(trigger.Type)
	}
}

func describeAction(action models.Action) string {
	switch config := action.Config.(type) {
	case *models.MoveStageConfig:
		return fmt.Sprintf("move it to %q", config.ToStage)
	case *models.SendNotificationConfig:
		return fmt.Sprintf("notify %q", config.Message)
	case *models.CreateTaskConfig:
		if config.DueInDays > 0 {
			return fmt.Sprintf("create task %q due in %d days", config.Title, config.DueInDays)
		}

		return fmt.Sprintf("create task %q", config.Title)
	case *models.EnrollSequenceConfig:
		return fmt.Sprintf("enroll it in workflow %s", config.WorkflowID)
	case *models.UpdateFieldConfig:
		switch config.UpdateType {
		case models.UpdateTypeTag:
			return fmt.Sprintf("tag it %q", config.Tag)
		case models.UpdateTypeScore:
			return fmt.Sprintf("adjust its score by %+g", config.Delta)
		default:
			return fmt.Sprintf("set %s to %v", config.Field, config.Value)
		}
	default:
		return string(action.Type)
	}
}

func describeGroup(group models.ConditionGroup) string {
	if group.IsEmpty() {
		return ""
	}

	joiner := " and "
	if group.Logic == models.LogicOr {
		joiner = " or "
	}

	parts := make([]string, 0, len(group.Rules)+len(group.Groups))

	for _, rule := range group.Rules {
		part := rule.Field + " " + strings.ReplaceAll(string(rule.Operator), "_", " ")
		if rule.Operator != models.OperatorIsEmpty && rule.Operator != models.OperatorIsNotEmpty {
			part += fmt.Sprintf(" %v", rule.Value)
		}

		parts = append(parts, part)
	}

	for _, child := range group.Groups {
		if nested := describeGroup(child); nested != "" {
			parts = append(parts, "("+nested+")")
		}
	}

	return strings.Join(parts, joiner)
}
