// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/templates"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrEmptyTenantID    = errors.New("tenant ID cannot be empty")
	ErrInvalidRule      = errors.New("invalid automation rule")
	ErrInvalidTemplate  = errors.New("invalid automation template")
	ErrInvalidWorkflow  = errors.New("invalid workflow definition")
	ErrInvalidEvent     = errors.New("invalid crm event")

	// Business Logic Conflicts (409 Conflict).
	ErrEnrollmentFinished = errors.New("enrollment already finished")
	ErrTemplateReadOnly   = errors.New("template belongs to another tenant")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyTenantID) ||
		errors.Is(err, ErrInvalidRule) ||
		errors.Is(err, ErrInvalidTemplate) ||
		errors.Is(err, ErrInvalidWorkflow) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, templates.ErrInvalidImport) ||
		errors.Is(err, templates.ErrInvalidRating)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrEnrollmentFinished) ||
		errors.Is(err, ErrTemplateReadOnly)
}

// IsNotFoundError checks if an error refers to a missing record or version.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) ||
		errors.Is(err, persistence.ErrRuleVersionNotFound) ||
		errors.Is(err, templates.ErrVersionNotFound)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// invalid wraps a model validation failure so it maps to a 400.
func invalid(op string, kind, err error) error {
	return NewValidationError(op, "validation_failed", err.Error(), fmt.Errorf("%w: %w", kind, err))
}
