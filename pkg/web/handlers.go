// Package web provides HTTP handlers and REST API endpoints for flow
// execution.
package web

import (
	"encoding/json"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/services"
)

const defaultRunListLimit = 50

// APIHandlers wires the execution service to HTTP routes.
type APIHandlers struct {
	execution   *services.Execution
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(execution *services.Execution, p persistence.Persistence, validate *validator.Validate) *APIHandlers {
	return &APIHandlers{
		execution:   execution,
		persistence: p,
		validator:   validate,
	}
}

// TriggerRequest is the body of a manual trigger call.
type TriggerRequest struct {
	UserID string         `json:"user_id" validate:"required"`
	Input  map[string]any `json:"input"`
}

// GetFlows lists flow definitions.
func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.persistence.Flows().All(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"flows": flows, "count": len(flows)})
}

// GetFlow returns a single flow definition.
func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	flow, err := h.persistence.Flows().ByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

// TriggerFlow queues a run for the flow.
func (h *APIHandlers) TriggerFlow(c fiber.Ctx) error {
	var req TriggerRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.execution.TriggerFlow(c.Context(), c.Params("id"), req.UserID, req.Input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

// IngestWebhook accepts a webhook event batch for the flow. The body
// may be a single JSON object or an array of objects.
func (h *APIHandlers) IngestWebhook(c fiber.Ctx) error {
	body := c.Body()

	var batch []map[string]any

	if err := json.Unmarshal(body, &batch); err != nil {
		var single map[string]any
		if err := json.Unmarshal(body, &single); err != nil {
			return badRequest(c, "body must be a JSON object or array of objects")
		}

		batch = []map[string]any{single}
	}

	flowID := c.Params("flowID")

	flow, err := h.persistence.Flows().ByID(c.Context(), flowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	run, err := h.execution.IngestWebhook(c.Context(), flowID, flow.UserID, batch)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"run_id":      run.ID,
		"event_count": len(batch),
	})
}

// GetRun returns run status with node outputs.
func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	detail, err := h.execution.RunStatus(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

// GetFlowRuns lists a flow's recent runs.
func (h *APIHandlers) GetFlowRuns(c fiber.Ctx) error {
	limit := defaultRunListLimit

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}

		limit = parsed
	}

	runs, err := h.execution.RunsForFlow(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs, "count": len(runs)})
}

// CancelRun requests cancellation of a queued or running run.
func (h *APIHandlers) CancelRun(c fiber.Ctx) error {
	run, err := h.execution.CancelRun(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

// HealthCheck reports storage availability.
func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
