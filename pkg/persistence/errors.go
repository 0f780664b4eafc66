package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRuleNotFound indicates a rule was not found for the tenant.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleVersionNotFound indicates the requested rule version does not exist.
	ErrRuleVersionNotFound = errors.New("rule version not found")

	// ErrTemplateNotFound indicates a template was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrWorkflowNotFound indicates a workflow definition was not found for the tenant.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrEnrollmentNotFound indicates an enrollment was not found for the tenant.
	ErrEnrollmentNotFound = errors.New("enrollment not found")

	// ErrEntityNotFound indicates a CRM record was not found for the tenant.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidSortField indicates a sort field outside the allowlist.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// RecordError wraps a repository error with the operation and record it concerns.
type RecordError struct {
	Op       string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Kind     string // Record kind (rule, template, workflow, ...)
	ID       string // Record ID if applicable
	TenantID string // Tenant if applicable
	Err      error  // Underlying error
}

func (e *RecordError) Error() string {
	target := e.ID
	if e.TenantID != "" {
		target = fmt.Sprintf("%s (tenant %s)", e.ID, e.TenantID)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, target, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, kind, tenantID, id string, err error) *RecordError {
	return &RecordError{
		Op:       op,
		Kind:     kind,
		ID:       id,
		TenantID: tenantID,
		Err:      err,
	}
}

// IsRuleNotFound checks if an error indicates a rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsEnrollmentNotFound checks if an error indicates an enrollment was not found.
func IsEnrollmentNotFound(err error) bool {
	return errors.Is(err, ErrEnrollmentNotFound)
}

// IsEntityNotFound checks if an error indicates a CRM record was not found.
func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsNotFound checks if an error is any of the not-found errors.
func IsNotFound(err error) bool {
	return IsRuleNotFound(err) ||
		errors.Is(err, ErrRuleVersionNotFound) ||
		IsTemplateNotFound(err) ||
		IsWorkflowNotFound(err) ||
		IsEnrollmentNotFound(err) ||
		IsEntityNotFound(err)
}
