// Package web provides HTTP handlers and REST API endpoints for automation management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/dukex/dealflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const localTenantID = "tenant_id"

type APIHandlers struct {
	ruleService     *services.Rules
	templateService *services.Templates
	workflowService *services.Workflow
	eventService    *services.Events
	validator       *validator.Validate
}

func NewAPIHandlers(
	ruleService *services.Rules,
	templateService *services.Templates,
	workflowService *services.Workflow,
	eventService *services.Events,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		ruleService:     ruleService,
		templateService: templateService,
		workflowService: workflowService,
		eventService:    eventService,
		validator:       validator,
	}
}

// Mount registers every tenant scoped route under router.
func (h *APIHandlers) Mount(router fiber.Router) {
	router.Use(h.RequireTenant)

	rules := router.Group("/rules")
	rules.Get("/", h.GetRules)
	rules.Post("/", h.CreateRule)
	rules.Post("/dry-run", h.DryRunRule)
	rules.Get("/:id", h.GetRule)
	rules.Put("/:id", h.UpdateRule)
	rules.Delete("/:id", h.DeleteRule)
	rules.Post("/:id/toggle", h.ToggleRule)
	rules.Post("/:id/clone", h.CloneRule)
	rules.Get("/:id/versions", h.GetRuleVersions)
	rules.Post("/:id/rollback", h.RollbackRule)
	rules.Get("/:id/executions", h.GetRuleExecutions)

	router.Get("/executions", h.GetExecutions)

	templates := router.Group("/templates")
	templates.Get("/", h.GetTemplates)
	templates.Post("/", h.SaveRuleAsTemplate)
	templates.Post("/import", h.ImportTemplate)
	templates.Get("/:id", h.GetTemplate)
	templates.Put("/:id", h.UpdateTemplate)
	templates.Delete("/:id", h.DeleteTemplate)
	templates.Post("/:id/rate", h.RateTemplate)
	templates.Post("/:id/install", h.InstallTemplate)
	templates.Post("/:id/rollback", h.RollbackTemplate)
	templates.Get("/:id/export", h.ExportTemplate)

	workflows := router.Group("/workflows")
	workflows.Get("/", h.GetWorkflows)
	workflows.Post("/", h.CreateWorkflow)
	workflows.Get("/:id", h.GetWorkflow)
	workflows.Put("/:id", h.UpdateWorkflow)
	workflows.Delete("/:id", h.DeleteWorkflow)
	workflows.Post("/:id/enrollments", h.EnrollEntity)
	workflows.Get("/:id/enrollments", h.GetWorkflowEnrollments)

	enrollments := router.Group("/enrollments")
	enrollments.Get("/", h.GetEnrollments)
	enrollments.Get("/:id", h.GetEnrollment)
	enrollments.Post("/:id/stop", h.StopEnrollment)

	router.Post("/events", h.IngestEvent)
}

// RequireTenant rejects requests without a tenant header.
func (h *APIHandlers) RequireTenant(c fiber.Ctx) error {
	tenantID := c.Get(HeaderTenantID)
	if tenantID == "" {
		return badRequest(c, HeaderTenantID+" header is required")
	}

	c.Locals(localTenantID, tenantID)

	return c.Next()
}

func tenant(c fiber.Ctx) string {
	tenantID, _ := c.Locals(localTenantID).(string)

	return tenantID
}

func actor(c fiber.Ctx) string {
	if user := c.Get(HeaderUserID); user != "" {
		return user
	}

	return "api"
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Dealflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Dealflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.ListWorkflows(c.Context(), tenant(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req models.WorkflowDefinition
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.Create(c.Context(), tenant(c), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req models.WorkflowDefinition
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.Update(c.Context(), tenant(c), c.Params("id"), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), tenant(c), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EnrollEntity(c fiber.Ctx) error {
	var req EnrollRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enrollment, err := h.workflowService.Enroll(c.Context(), tenant(c), c.Params("id"), models.EntityRef{
		Type: req.EntityType,
		ID:   req.EntityID,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(enrollment)
}

func (h *APIHandlers) GetWorkflowEnrollments(c fiber.Ctx) error {
	opts := enrollmentFilter(c)
	opts.WorkflowID = c.Params("id")

	return h.listEnrollments(c, opts)
}

func (h *APIHandlers) GetEnrollments(c fiber.Ctx) error {
	opts := enrollmentFilter(c)
	opts.WorkflowID = c.Query("workflow_id")

	return h.listEnrollments(c, opts)
}

func (h *APIHandlers) listEnrollments(c fiber.Ctx, opts persistence.ListEnrollmentsOptions) error {
	enrollments, err := h.workflowService.ListEnrollments(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func enrollmentFilter(c fiber.Ctx) persistence.ListEnrollmentsOptions {
	opts := persistence.ListEnrollmentsOptions{
		TenantID:   tenant(c),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.EnrollmentStatus(statusStr)
		opts.Status = &status
	}

	return opts
}

func (h *APIHandlers) GetEnrollment(c fiber.Ctx) error {
	enrollment, err := h.workflowService.FetchEnrollment(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrollment)
}

func (h *APIHandlers) StopEnrollment(c fiber.Ctx) error {
	enrollment, err := h.workflowService.StopEnrollment(c.Context(), tenant(c), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(enrollment)
}

// IngestEvent accepts a CRM event and queues it for rule dispatch.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event, err := h.eventService.Ingest(c.Context(), req.ToModel(tenant(c)))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(event)
}

func queryInt(c fiber.Ctx, key string) (int, error) {
	value := c.Query(key)
	if value == "" {
		return 0, nil
	}

	return strconv.Atoi(value)
}
