package web

import (
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.ListTemplates(c.Context(), persistence.ListTemplatesOptions{
		TenantID: tenant(c),
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	template, err := h.templateService.GetTemplate(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) SaveRuleAsTemplate(c fiber.Ctx) error {
	var req SaveAsTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateService.SaveRuleAsTemplate(c.Context(), tenant(c), req.RuleID, req.Category, req.Tags, actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	var req TemplateUpdateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateService.UpdateTemplate(c.Context(), tenant(c), c.Params("id"), req.definition(), req.Note, actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	if err := h.templateService.DeleteTemplate(c.Context(), tenant(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) RateTemplate(c fiber.Ctx) error {
	var req RateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateService.RateTemplate(c.Context(), tenant(c), c.Params("id"), req.Rating)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"id":             template.ID,
		"average_rating": template.AverageRating(),
		"rating_count":   template.RatingCount,
	})
}

func (h *APIHandlers) InstallTemplate(c fiber.Ctx) error {
	var req InstallTemplateRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.templateService.InstallTemplate(c.Context(), tenant(c), c.Params("id"), req.overrides(), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(change)
}

func (h *APIHandlers) RollbackTemplate(c fiber.Ctx) error {
	var req RollbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template, err := h.templateService.RollbackTemplate(c.Context(), tenant(c), c.Params("id"), req.Version, actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) ExportTemplate(c fiber.Ctx) error {
	portable, err := h.templateService.ExportTemplate(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(portable)
}

// ImportTemplate stores the raw portable document from the request body.
func (h *APIHandlers) ImportTemplate(c fiber.Ctx) error {
	template, err := h.templateService.ImportTemplate(c.Context(), tenant(c), c.Body(), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(template)
}
