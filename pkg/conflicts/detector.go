// Package conflicts finds advisory conflicts between a candidate rule and the active rule set.
package conflicts

import (
	"fmt"

	"github.com/dukex/dealflow/pkg/models"
)

// Kind classifies a conflict report.
type Kind string

const (
	KindOppositeAction Kind = "opposite_action"
	KindLoop           Kind = "loop"
)

// Report is an advisory warning about two rules. It never blocks persistence.
type Report struct {
	Kind      Kind     `json:"kind"`
	RuleIDs   []string `json:"rule_ids"`
	RuleNames []string `json:"rule_names"`
	Stages    []string `json:"stages"`
	Message   string   `json:"message"`
}

// Detect compares candidate pairwise against every active rule. At most one report is
// produced per pair; a potential loop takes precedence over an opposite-action conflict.
func Detect(candidate *models.AutomationRule, active []*models.AutomationRule) []Report {
	if candidate == nil {
		return nil
	}

	var reports []Report

	for _, other := range active {
		if other == nil || !other.IsActive() {
			continue
		}

		if candidate.ID != "" && other.ID == candidate.ID {
			continue
		}

		if report, ok := loop(candidate, other); ok {
			reports = append(reports, report)

			continue
		}

		if report, ok := opposite(candidate, other); ok {
			reports = append(reports, report)
		}
	}

	return reports
}

func opposite(a, b *models.AutomationRule) (Report, bool) {
	if a.Trigger.Type != b.Trigger.Type {
		return Report{}, false
	}

	aTarget, ok := moveTarget(a)
	if !ok {
		return Report{}, false
	}

	bTarget, ok := moveTarget(b)
	if !ok || aTarget == bTarget {
		return Report{}, false
	}

	return Report{
		Kind:      KindOppositeAction,
		RuleIDs:   []string{a.ID, b.ID},
		RuleNames: []string{a.Name, b.Name},
		Stages:    []string{aTarget, bTarget},
		Message: fmt.Sprintf("rules %q and %q both fire on %s but move the deal to different stages (%s vs %s)",
			a.Name, b.Name, a.Trigger.Type, aTarget, bTarget),
	}, true
}

// loop reports stage_entered/move_stage pairs where each rule moves the deal into the
// stage that fires the other.
func loop(a, b *models.AutomationRule) (Report, bool) {
	aEnter, aTarget, ok := stageTransition(a)
	if !ok {
		return Report{}, false
	}

	bEnter, bTarget, ok := stageTransition(b)
	if !ok {
		return Report{}, false
	}

	if aEnter != bTarget || bEnter != aTarget {
		return Report{}, false
	}

	return Report{
		Kind:      KindLoop,
		RuleIDs:   []string{a.ID, b.ID},
		RuleNames: []string{a.Name, b.Name},
		Stages:    []string{aEnter, aTarget},
		Message: fmt.Sprintf("rules %q (%s -> %s) and %q (%s -> %s) reverse each other and may loop forever",
			a.Name, aEnter, aTarget, b.Name, bEnter, bTarget),
	}, true
}

func moveTarget(rule *models.AutomationRule) (string, bool) {
	config, ok := rule.Action.MoveStage()
	if !ok || config.ToStage == "" {
		return "", false
	}

	return config.ToStage, true
}

func stageTransition(rule *models.AutomationRule) (string, string, bool) {
	trigger, ok := rule.Trigger.StageEntered()
	if !ok || trigger.ToStage == "" {
		return "", "", false
	}

	target, ok := moveTarget(rule)
	if !ok {
		return "", "", false
	}

	return trigger.ToStage, target, true
}
