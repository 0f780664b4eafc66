package models

import (
	"errors"
	"fmt"
	"strings"
)

// Logic combines the children of a condition group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator compares a resolved field against a rule value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
)

// IsValid checks if the operator is one of the known values.
func (o Operator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorGreaterThan, OperatorLessThan,
		OperatorContains, OperatorNotContains, OperatorIsEmpty, OperatorIsNotEmpty:
		return true
	default:
		return false
	}
}

var ErrInvalidCondition = errors.New("invalid condition")

// ConditionRule compares the entity field at Field (dotted path) with Value.
type ConditionRule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// ConditionGroup is a recursive AND/OR tree. A group without children matches everything.
type ConditionGroup struct {
	Logic  Logic            `json:"logic,omitempty"`
	Rules  []ConditionRule  `json:"rules,omitempty"`
	Groups []ConditionGroup `json:"groups,omitempty"`
}

// IsEmpty reports whether the group places no constraint.
func (g ConditionGroup) IsEmpty() bool {
	return len(g.Rules) == 0 && len(g.Groups) == 0
}

// Validate rejects unknown operators and logic values and empty field references.
func (g ConditionGroup) Validate() error {
	switch strings.ToUpper(string(g.Logic)) {
	case "", string(LogicAnd), string(LogicOr):
	default:
		return fmt.Errorf("%w: unknown logic %q", ErrInvalidCondition, g.Logic)
	}

	for i, rule := range g.Rules {
		if strings.TrimSpace(rule.Field) == "" {
			return fmt.Errorf("%w: rule %d has no field", ErrInvalidCondition, i)
		}

		if !rule.Operator.IsValid() {
			return fmt.Errorf("%w: rule %d has unknown operator %q", ErrInvalidCondition, i, rule.Operator)
		}
	}

	for _, child := range g.Groups {
		if err := child.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Clone returns a deep copy of the group structure. Rule values are shared.
func (g ConditionGroup) Clone() ConditionGroup {
	clone := ConditionGroup{Logic: g.Logic}

	if g.Rules != nil {
		clone.Rules = append([]ConditionRule(nil), g.Rules...)
	}

	for _, child := range g.Groups {
		clone.Groups = append(clone.Groups, child.Clone())
	}

	return clone
}
