package web

import (
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetRules(c fiber.Ctx) error {
	req, err := parseListRulesRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.ruleService.ListRules(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"rules":         result.Rules,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
		"sorting": fiber.Map{
			"sort_by":    req.SortBy,
			"sort_order": req.SortOrder,
		},
	})
}

func parseListRulesRequest(c fiber.Ctx) (*services.ListRulesRequest, error) {
	req := &services.ListRulesRequest{TenantID: tenant(c)}

	var err error

	if req.Limit, err = queryInt(c, "limit"); err != nil {
		return nil, err
	}

	if req.Offset, err = queryInt(c, "offset"); err != nil {
		return nil, err
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.RuleStatus(statusStr)
		req.Status = &status
	}

	req.TriggerType = models.TriggerType(c.Query("trigger_type"))
	req.SortBy = c.Query("sort_by")
	req.SortOrder = c.Query("sort_order")

	return req, nil
}

func (h *APIHandlers) GetRule(c fiber.Ctx) error {
	rule, err := h.ruleService.GetRule(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(rule)
}

func (h *APIHandlers) CreateRule(c fiber.Ctx) error {
	req, err := h.bindRule(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.ruleService.CreateRule(c.Context(), req.ToModel(tenant(c)), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(change)
}

func (h *APIHandlers) UpdateRule(c fiber.Ctx) error {
	req, err := h.bindRule(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.ruleService.UpdateRule(c.Context(), tenant(c), c.Params("id"), req.ToModel(tenant(c)), actor(c), req.Note)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(change)
}

func (h *APIHandlers) bindRule(c fiber.Ctx) (*RuleRequest, error) {
	var req RuleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, services.ErrInvalidRequest
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (h *APIHandlers) DeleteRule(c fiber.Ctx) error {
	if err := h.ruleService.DeleteRule(c.Context(), tenant(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ToggleRule(c fiber.Ctx) error {
	change, err := h.ruleService.ToggleRule(c.Context(), tenant(c), c.Params("id"), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(change)
}

func (h *APIHandlers) CloneRule(c fiber.Ctx) error {
	change, err := h.ruleService.CloneRule(c.Context(), tenant(c), c.Params("id"), actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(change)
}

func (h *APIHandlers) GetRuleVersions(c fiber.Ctx) error {
	versions, err := h.ruleService.RuleVersions(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"versions": versions})
}

func (h *APIHandlers) RollbackRule(c fiber.Ctx) error {
	var req RollbackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	change, err := h.ruleService.RollbackRule(c.Context(), tenant(c), c.Params("id"), req.Version, actor(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(change)
}

// DryRunRule reports how many stored entities an unsaved rule would act on.
func (h *APIHandlers) DryRunRule(c fiber.Ctx) error {
	req, err := h.bindRule(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	rule := req.ToModel(tenant(c))
	if rule.Status == "" {
		rule.Status = models.RuleStatusActive
	}

	simulation, err := h.ruleService.DryRun(c.Context(), tenant(c), rule)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(simulation)
}

func (h *APIHandlers) GetRuleExecutions(c fiber.Ctx) error {
	query, err := parseExecutionQuery(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	query.RuleID = c.Params("id")

	return h.listExecutions(c, query)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	query, err := parseExecutionQuery(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	query.RuleID = c.Query("rule_id")

	return h.listExecutions(c, query)
}

func (h *APIHandlers) listExecutions(c fiber.Ctx, query services.ExecutionQuery) error {
	result, err := h.ruleService.ListExecutions(c.Context(), query)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func parseExecutionQuery(c fiber.Ctx) (services.ExecutionQuery, error) {
	query := services.ExecutionQuery{
		TenantID:   tenant(c),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}

	var err error

	if query.Limit, err = queryInt(c, "limit"); err != nil {
		return query, err
	}

	if query.Offset, err = queryInt(c, "offset"); err != nil {
		return query, err
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.ExecutionStatus(statusStr)
		query.Status = &status
	}

	return query, nil
}
