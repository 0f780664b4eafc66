package persistence_test

import (
	"errors"
	"testing"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		ruleErr := persistence.NewRecordError("GetByID", "rule", "tenant-1", "rule-123", persistence.ErrRuleNotFound)
		enrollmentErr := persistence.NewRecordError("GetByID", "enrollment", "", "enr-1", persistence.ErrEnrollmentNotFound)

		assert.True(t, persistence.IsRuleNotFound(ruleErr))
		assert.True(t, persistence.IsEnrollmentNotFound(enrollmentErr))
		assert.True(t, persistence.IsNotFound(ruleErr))
		assert.False(t, persistence.IsTemplateNotFound(ruleErr))

		assert.True(t, errors.Is(ruleErr, persistence.ErrRuleNotFound))
	})

	t.Run("record error contains context", func(t *testing.T) {
		err := persistence.NewRecordError("Delete", "rule", "tenant-1", "rule-123", persistence.ErrRuleNotFound)

		assert.Contains(t, err.Error(), "Delete")
		assert.Contains(t, err.Error(), "rule-123")
		assert.Contains(t, err.Error(), "tenant-1")
		assert.Contains(t, err.Error(), "rule not found")
	})

	t.Run("not found does not match unrelated errors", func(t *testing.T) {
		assert.False(t, persistence.IsNotFound(errors.New("disk full")))
	})
}
