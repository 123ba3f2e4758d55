package events

import "pizza-flow-service/internal/models"

// Event names emitted on the flow events topic.
const (
	TaskUpdate      = "task_update"
	OperationUpdate = "operation_update"
	PizzaUpdate     = "pizza_update"
)

// TaskDispatchPayload is pushed to region workers when a task becomes
// pending. Messages are keyed by region so workers consume their partition.
type TaskDispatchPayload struct {
	Region string                `json:"region"`
	Task   *models.TaskExecution `json:"task"`
}

// FlowEvent is the envelope for fire-and-forget notifications to
// subscribers: task updates, operation updates and domain milestones.
type FlowEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}
