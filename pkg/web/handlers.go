package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/journey"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
	"github.com/voyage-hq/voyage/pkg/trigger"
)

// OrganizationHeader carries the tenant for every request. Upstream auth
// middleware is expected to have resolved and verified it.
const OrganizationHeader = "X-Organization-ID"

// ExecutionCanceler cancels an execution on behalf of an operator.
type ExecutionCanceler interface {
	CancelExecution(ctx context.Context, executionID, canceledBy string) error
}

type APIHandlers struct {
	journeys    *journey.Repository
	publishing  *journey.PublishingService
	matcher     *trigger.Matcher
	canceler    ExecutionCanceler
	publisher   eventbus.EventPublisher
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	journeys *journey.Repository,
	publishing *journey.PublishingService,
	matcher *trigger.Matcher,
	canceler ExecutionCanceler,
	publisher eventbus.EventPublisher,
	p persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		journeys:    journeys,
		publishing:  publishing,
		matcher:     matcher,
		canceler:    canceler,
		publisher:   publisher,
		persistence: p,
		validator:   validate,
	}
}

func (h *APIHandlers) organization(c fiber.Ctx) (string, error) {
	organizationID := c.Get(OrganizationHeader)
	if organizationID == "" {
		return "", badRequest(c, OrganizationHeader+" header is required")
	}

	return organizationID, nil
}

func (h *APIHandlers) page(c fiber.Ctx) (models.PageRequest, error) {
	req := models.PageRequest{}

	if pageStr := c.Query("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return req, err
		}

		req.Page = page
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return req, err
		}

		req.Limit = limit
	}

	return req, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.journeys.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) ListJourneys(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	page, err := h.page(c)
	if err != nil {
		return badRequest(c, "invalid pagination parameters")
	}

	journeys, total, err := h.journeys.List(c.Context(), organizationID, page)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ListResponse{
		Items:      journeys,
		Pagination: models.NewPageInfo(page, total),
	})
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	found, err := h.journeys.FetchByID(c.Context(), organizationID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeys.Create(c.Context(), &models.Journey{
		OrganizationID: organizationID,
		Name:           req.Name,
		CreatedBy:      req.CreatedBy,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req UpdateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.journeys.Update(c.Context(), organizationID, c.Params("id"), req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.journeys.Delete(c.Context(), organizationID, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddStep(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req StepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.journeys.AddStep(c.Context(), organizationID, c.Params("id"), &models.Step{
		Type:      req.Type,
		Config:    req.Config,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req StepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.journeys.UpdateStep(c.Context(), organizationID, c.Params("id"), &models.Step{
		ID:        c.Params("stepId"),
		Type:      req.Type,
		Config:    req.Config,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) RemoveStep(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.journeys.RemoveStep(c.Context(), organizationID, c.Params("id"), c.Params("stepId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddConnection(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req ConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	conn, err := h.journeys.AddConnection(c.Context(), organizationID, c.Params("id"), &models.Connection{
		FromStepID: req.FromStepID,
		ToStepID:   req.ToStepID,
		Label:      req.Label,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *APIHandlers) RemoveConnection(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.journeys.RemoveConnection(c.Context(), organizationID, c.Params("id"), c.Params("connectionId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AddTrigger(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req TriggerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.journeys.AddTrigger(c.Context(), organizationID, c.Params("id"), &models.Trigger{
		Type:   req.Type,
		Config: req.Config,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) RemoveTrigger(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.journeys.RemoveTrigger(c.Context(), organizationID, c.Params("id"), c.Params("triggerId")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	version, err := h.publishing.Publish(c.Context(), organizationID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(version)
}

func (h *APIHandlers) PauseJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.publishing.Pause(c.Context(), organizationID, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.publishing.Resume(c.Context(), organizationID, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ArchiveJourney(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	if err := h.publishing.Archive(c.Context(), organizationID, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetLatestVersion(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	// The journey lookup applies tenant scoping before the version read.
	if _, err := h.journeys.FetchByID(c.Context(), organizationID, c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	version, err := h.publishing.LatestVersion(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(version)
}

// StartExecution starts the journey for a contact through its manual
// trigger. The resulting engine events are published so a worker picks the
// execution up.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	started, err := h.matcher.StartManual(c.Context(), organizationID, c.Params("id"), req.ContactID)
	if err != nil {
		return handleServiceError(c, err)
	}

	for _, event := range started {
		if err := h.publisher.Publish(c.Context(), req.ContactID, event); err != nil {
			return internalError(c, err)
		}
	}

	execution, err := h.persistence.Executions().ActiveByJourneyAndContact(c.Context(), c.Params("id"), req.ContactID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) ListExecutions(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	page, err := h.page(c)
	if err != nil {
		return badRequest(c, "invalid pagination parameters")
	}

	var status *models.ExecutionStatus

	if statusStr := c.Query("status"); statusStr != "" {
		s := models.ExecutionStatus(statusStr)
		status = &s
	}

	executions, total, err := h.persistence.Executions().List(c.Context(), organizationID, status, page)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ListResponse{
		Items:      executions,
		Pagination: models.NewPageInfo(page, total),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	execution, err := h.persistence.Executions().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if execution.OrganizationID != organizationID {
		return notFound(c, "execution not found")
	}

	steps, err := h.persistence.Executions().StepsByExecution(c.Context(), execution.ID)
	if err != nil {
		return internalError(c, err)
	}

	page, err := h.page(c)
	if err != nil {
		return badRequest(c, "invalid pagination parameters")
	}

	logs, _, err := h.persistence.Logs().ByExecution(c.Context(), execution.ID, page)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ExecutionDetail{
		Execution: execution,
		Steps:     steps,
		Logs:      logs,
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	organizationID, err := h.organization(c)
	if err != nil {
		return err
	}

	execution, err := h.persistence.Executions().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	if execution.OrganizationID != organizationID {
		return notFound(c, "execution not found")
	}

	// The body is optional; cancellation without attribution is allowed.
	var req CancelExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	if req.CanceledBy == "" {
		req.CanceledBy = "operator"
	}

	if err := h.canceler.CancelExecution(c.Context(), execution.ID, req.CanceledBy); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
