// Package conditions evaluates rule condition groups against entity snapshots.
package conditions

import (
	"fmt"
	"strings"

	"github.com/dukex/dealflow/pkg/models"
)

// Evaluate reports whether the entity satisfies the group. A group with no rules and no
// nested groups matches every entity. A rule that cannot be evaluated resolves to false
// on its own without aborting the rest of the expression.
func Evaluate(group models.ConditionGroup, entity models.EntitySnapshot) bool {
	if group.IsEmpty() {
		return true
	}

	if isOr(group.Logic) {
		for _, rule := range group.Rules {
			if EvaluateRule(rule, entity) {
				return true
			}
		}

		for _, child := range group.Groups {
			if Evaluate(child, entity) {
				return true
			}
		}

		return false
	}

	for _, rule := range group.Rules {
		if !EvaluateRule(rule, entity) {
			return false
		}
	}

	for _, child := range group.Groups {
		if !Evaluate(child, entity) {
			return false
		}
	}

	return true
}

// EvaluateRule evaluates a single comparison. Panics raised while resolving or comparing
// values are recovered and reported as false.
func EvaluateRule(rule models.ConditionRule, entity models.EntitySnapshot) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	actual, present := entity.Lookup(rule.Field)

	switch rule.Operator {
	case models.OperatorIsEmpty:
		return !present || isEmpty(actual)
	case models.OperatorIsNotEmpty:
		return present && !isEmpty(actual)
	}

	if !present {
		return false
	}

	switch rule.Operator {
	case models.OperatorEquals:
		return equals(actual, rule.Value)
	case models.OperatorNotEquals:
		return !equals(actual, rule.Value)
	case models.OperatorGreaterThan:
		a, b, ok := numbers(actual, rule.Value)

		return ok && a > b
	case models.OperatorLessThan:
		a, b, ok := numbers(actual, rule.Value)

		return ok && a < b
	case models.OperatorContains:
		return contains(actual, rule.Value)
	case models.OperatorNotContains:
		return !contains(actual, rule.Value)
	default:
		return false
	}
}

func isOr(logic models.Logic) bool {
	return strings.EqualFold(string(logic), string(models.LogicOr))
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func numbers(actual, expected any) (float64, float64, bool) {
	a, ok := models.ToFloat(actual)
	if !ok {
		return 0, 0, false
	}

	b, ok := models.ToFloat(expected)
	if !ok {
		return 0, 0, false
	}

	return a, b, true
}

func equals(actual, expected any) bool {
	if a, b, ok := numbers(actual, expected); ok {
		return a == b
	}

	return stringify(actual) == stringify(expected)
}

func contains(actual, expected any) bool {
	needle := strings.ToLower(stringify(expected))

	switch v := actual.(type) {
	case []any:
		for _, item := range v {
			if strings.ToLower(stringify(item)) == needle {
				return true
			}
		}

		return false
	case []string:
		for _, item := range v {
			if strings.ToLower(item) == needle {
				return true
			}
		}

		return false
	}

	return strings.Contains(strings.ToLower(stringify(actual)), needle)
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
