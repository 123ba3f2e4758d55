package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/dispatch"
	"pizza-flow-service/internal/order-manager/operations"
)

// WorkerHandler serves the task distribution endpoints for region workers.
type WorkerHandler struct {
	Dispatch *dispatch.Service
}

func NewWorkerHandler(d *dispatch.Service) *WorkerHandler {
	return &WorkerHandler{Dispatch: d}
}

// ListWorkerTasks returns the prioritized eligible tasks for the caller's
// region, read from the X-Worker-Region header (or region query parameter).
func (h *WorkerHandler) ListWorkerTasks(ctx context.Context, c *app.RequestContext) {
	region := string(c.GetHeader("X-Worker-Region"))
	if region == "" {
		region = c.Query("region")
	}
	if region == "" {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Worker region not identified"})
		return
	}
	tasks, err := h.Dispatch.TasksForRegion(ctx, region)
	if err != nil {
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to fetch tasks: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, utils.H{"tasks": tasks})
}

// ReportTask accepts a TaskExecution report and reconciles it.
func (h *WorkerHandler) ReportTask(ctx context.Context, c *app.RequestContext) {
	var exec models.TaskExecution
	if err := c.BindJSON(&exec); err != nil {
		c.JSON(http.StatusBadRequest, utils.H{"error": "Invalid request payload: " + err.Error()})
		return
	}
	if exec.UUID == "" {
		exec.UUID = c.Param("id")
	}
	err := h.Dispatch.ReportExecution(ctx, &exec)
	switch {
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, utils.H{"error": "Task already running"})
	case errors.Is(err, dispatch.ErrTaskNotFound), errors.Is(err, operations.ErrOperationNotFound):
		c.JSON(http.StatusBadRequest, utils.H{"error": "Operation not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, utils.H{"error": "Failed to process report: " + err.Error()})
	default:
		c.JSON(http.StatusOK, utils.H{"status": "ok"})
	}
}
