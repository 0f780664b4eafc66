package web

import (
	"errors"

	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/services"
	"github.com/dukex/dealflow/pkg/templates"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsRuleNotFound(err):
		return notFound(c, "rule_not_found", "rule not found")

	case errors.Is(err, persistence.ErrRuleVersionNotFound):
		return notFound(c, "rule_version_not_found", "rule version not found")

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template_not_found", "template not found")

	case errors.Is(err, templates.ErrVersionNotFound):
		return notFound(c, "template_version_not_found", "template version not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsEnrollmentNotFound(err):
		return notFound(c, "enrollment_not_found", "enrollment not found")

	case persistence.IsEntityNotFound(err):
		return notFound(c, "entity_not_found", "entity not found")

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}
