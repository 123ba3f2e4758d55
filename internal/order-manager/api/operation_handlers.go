package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/operations"
	"pizza-flow-service/internal/order-manager/store"
)

// OperationHandler serves the administrative operation endpoints.
type OperationHandler struct {
	Store  *store.Store
	Engine *operations.Engine
}

func NewOperationHandler(st *store.Store, engine *operations.Engine) *OperationHandler {
	return &OperationHandler{Store: st, Engine: engine}
}

type StartOperationRequest struct {
	Operation  string         `json:"operation" validate:"required"`
	Parameters models.JSONMap `json:"parameters"`
	RFAID      string         `json:"rfa_id"`
}

func (h *OperationHandler) StartOperation(ctx context.Context, c *app.RequestContext) {
	var req StartOperationRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	op, err := h.Engine.Start(ctx, req.Operation, req.Parameters, req.RFAID)
	switch {
	case errors.Is(err, operations.ErrOperationNotFound):
		c.JSON(http.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, operations.ErrInvalidParameters):
		c.JSON(http.StatusBadRequest, utils.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to start operation: " + err.Error()})
	default:
		c.JSON(http.StatusCreated, op)
	}
}

func (h *OperationHandler) GetOperations(ctx context.Context, c *app.RequestContext) {
	var statuses []models.OperationStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, models.OperationStatus(s))
		}
	}
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	ops, err := h.Store.ListOperations(ctx, statuses, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch operations: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"operations": ops})
}

func (h *OperationHandler) GetOperationByID(ctx context.Context, c *app.RequestContext) {
	op, ok := h.loadOperation(ctx, c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, op)
}

func (h *OperationHandler) GetOperationTasks(ctx context.Context, c *app.RequestContext) {
	op, ok := h.loadOperation(ctx, c)
	if !ok {
		return
	}
	tasks, err := h.Store.TasksForOperation(ctx, op.UUID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch tasks: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"tasks": tasks})
}

func (h *OperationHandler) CancelOperation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, h.Engine.Cancel)
}

func (h *OperationHandler) PauseOperation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, h.Engine.Pause)
}

func (h *OperationHandler) RescheduleOperation(ctx context.Context, c *app.RequestContext) {
	h.transition(ctx, c, h.Engine.Reschedule)
}

func (h *OperationHandler) DeleteOperation(ctx context.Context, c *app.RequestContext) {
	op, ok := h.loadOperation(ctx, c)
	if !ok {
		return
	}
	force := c.Query("force") == "true"
	err := h.Engine.Delete(ctx, op, force)
	switch {
	case errors.Is(err, operations.ErrInvalidTransition):
		c.JSON(http.StatusConflict, utils.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to delete operation: " + err.Error()})
	default:
		c.JSON(http.StatusOK, utils.H{"status": "ok"})
	}
}

func (h *OperationHandler) transition(ctx context.Context, c *app.RequestContext, apply func(context.Context, *models.Operation) error) {
	op, ok := h.loadOperation(ctx, c)
	if !ok {
		return
	}
	err := apply(ctx, op)
	switch {
	case errors.Is(err, operations.ErrInvalidTransition):
		c.JSON(http.StatusConflict, utils.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to update operation: " + err.Error()})
	default:
		c.JSON(http.StatusOK, op)
	}
}

func (h *OperationHandler) loadOperation(ctx context.Context, c *app.RequestContext) (*models.Operation, bool) {
	op, err := h.Store.LoadOperation(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, utils.H{"error": "Operation not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch operation: " + err.Error()})
		return nil, false
	}
	return op, true
}
