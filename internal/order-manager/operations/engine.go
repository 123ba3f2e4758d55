package operations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/notify"
	"pizza-flow-service/internal/order-manager/store"
	"pizza-flow-service/pkg/validation"
)

// DefaultRegion routes tasks when the operation parameters name none.
const DefaultRegion = "eu-west-3"

// Engine drives the operation and task state machines for every registered
// definition: start, administrative transitions, and the dependency
// scheduler reacting to task completions.
type Engine struct {
	store    *store.Store
	notifier notify.Notifier
	registry *Registry
}

func NewEngine(st *store.Store, notifier notify.Notifier, registry *Registry) *Engine {
	return &Engine{store: st, notifier: notifier, registry: registry}
}

// Start creates a pending operation and materializes its dependency-free
// tasks. Parameters are validated against the definition's schema and are
// never mutated afterwards.
func (e *Engine) Start(ctx context.Context, kind string, parameters models.JSONMap, rfaID string) (*models.Operation, error) {
	def, err := e.registry.Get(kind)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateWithSchema(def.ParameterSchema(), map[string]interface{}(parameters)); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidParameters, kind, err)
	}

	op := models.NewOperation(kind, parameters, rfaID)
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return nil, err
	}
	log.Printf("Operation %s (%s) created", op.UUID, kind)
	def.OnStarted(ctx, op)

	region := parameters.String("region", DefaultRegion)
	taskID := 0
	for _, name := range def.TaskNames() {
		if len(def.Dependencies(name)) > 0 {
			continue
		}
		taskID++
		task := models.NewTask(op.UUID, name, region, taskID, def.TaskParameters(op, name))
		if err := e.saveTask(ctx, task); err != nil {
			return nil, err
		}
	}
	e.notifier.OperationUpdated(ctx, op)
	return op, nil
}

// Cancel is legal from pending, paused and errored. Still-pending tasks are
// cancelled with the operation.
func (e *Engine) Cancel(ctx context.Context, op *models.Operation) error {
	switch op.Status {
	case models.OperationPending, models.OperationPaused, models.OperationErrored:
	default:
		return fmt.Errorf("cancel operation %s from %s: %w", op.UUID, op.Status, ErrInvalidTransition)
	}
	op.Status = models.OperationCancelled
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	if err := e.retagPendingTasks(ctx, op.UUID, models.TaskCancelled); err != nil {
		return err
	}
	e.notifier.OperationUpdated(ctx, op)
	return nil
}

// Pause is legal from running only. Still-pending tasks are paused so
// workers stop picking them up.
func (e *Engine) Pause(ctx context.Context, op *models.Operation) error {
	if op.Status != models.OperationRunning {
		return fmt.Errorf("pause operation %s from %s: %w", op.UUID, op.Status, ErrInvalidTransition)
	}
	op.Status = models.OperationPaused
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	if err := e.retagPendingTasks(ctx, op.UUID, models.TaskPaused); err != nil {
		return err
	}
	e.notifier.OperationUpdated(ctx, op)
	return nil
}

// Reschedule resumes a paused operation; its paused tasks return to pending
// and are pushed to workers again.
func (e *Engine) Reschedule(ctx context.Context, op *models.Operation) error {
	if op.Status != models.OperationPaused {
		return fmt.Errorf("reschedule operation %s from %s: %w", op.UUID, op.Status, ErrInvalidTransition)
	}
	op.Status = models.OperationRunning
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	tasks, err := e.store.TasksForOperation(ctx, op.UUID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status != models.TaskPaused {
			continue
		}
		task.Status = models.TaskPending
		if err := e.saveTask(ctx, task); err != nil {
			return err
		}
	}
	e.notifier.OperationUpdated(ctx, op)
	return nil
}

// Delete removes the operation and its tasks. Legal only from a terminal or
// errored status unless force is set.
func (e *Engine) Delete(ctx context.Context, op *models.Operation, force bool) error {
	switch op.Status {
	case models.OperationCancelled, models.OperationCompleted, models.OperationErrored:
	default:
		if !force {
			return fmt.Errorf("delete operation %s from %s: %w", op.UUID, op.Status, ErrInvalidTransition)
		}
	}
	tasks, err := e.store.TasksForOperation(ctx, op.UUID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := e.store.DeleteTask(ctx, task.UUID); err != nil {
			return err
		}
	}
	return e.store.DeleteOperation(ctx, op.UUID)
}

// OnTaskComplete advances the operation after a task completion: promotes a
// pending operation to running, materializes every declared task whose
// dependencies are all completed, and marks the operation completed exactly
// once when no task remains unfinished.
func (e *Engine) OnTaskComplete(ctx context.Context, task *models.Task) error {
	op, err := e.loadOperation(ctx, task.OperationID)
	if err != nil {
		return err
	}
	def, err := e.registry.Get(op.Operation)
	if err != nil {
		return err
	}
	if op.Status == models.OperationPending {
		op.Status = models.OperationRunning
	}

	tasks, err := e.store.TasksForOperation(ctx, op.UUID)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(tasks))
	completed := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		present[t.Name] = true
		if t.Status == models.TaskCompleted {
			completed[t.Name] = true
		}
	}

	created := 0
	for _, name := range def.TaskNames() {
		if present[name] {
			continue
		}
		ready := true
		for _, dep := range def.Dependencies(name) {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		// New tasks inherit the region of the just-completed task.
		next := models.NewTask(op.UUID, name, task.Region, len(tasks)+created+1, def.TaskParameters(op, name))
		if err := e.saveTask(ctx, next); err != nil {
			return err
		}
		created++
	}

	// Refresh to include newly materialized tasks.
	tasks, err = e.store.TasksForOperation(ctx, op.UUID)
	if err != nil {
		return err
	}
	allCompleted := len(tasks) > 0
	for _, t := range tasks {
		if t.Status != models.TaskCompleted {
			allCompleted = false
			break
		}
	}
	if allCompleted && op.Status != models.OperationCompleted {
		op.Status = models.OperationCompleted
		now := time.Now()
		op.EndDate = &now
		log.Printf("Operation %s (%s) completed", op.UUID, op.Operation)
		def.OnAllTasksCompleted(ctx, op)
	}

	if err := e.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	e.notifier.OperationUpdated(ctx, op)
	return nil
}

// OnTaskError force-fails the whole operation. Intentionally unguarded: any
// task error fails the operation; sibling in-flight tasks are not cancelled.
func (e *Engine) OnTaskError(ctx context.Context, task *models.Task) error {
	op, err := e.loadOperation(ctx, task.OperationID)
	if err != nil {
		return err
	}
	op.Status = models.OperationErrored
	log.Printf("Operation %s (%s) errored: task %s: %s", op.UUID, op.Operation, task.Name, task.Error)
	if err := e.store.SaveOperation(ctx, op); err != nil {
		return err
	}
	e.notifier.OperationUpdated(ctx, op)
	return nil
}

func (e *Engine) loadOperation(ctx context.Context, id string) (*models.Operation, error) {
	op, err := e.store.LoadOperation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("operation %s: %w", id, ErrOperationNotFound)
	}
	return op, err
}

// saveTask persists a task and notifies subscribers; a pending task is
// additionally pushed to workers in its region.
func (e *Engine) saveTask(ctx context.Context, task *models.Task) error {
	if err := e.store.SaveTask(ctx, task); err != nil {
		return err
	}
	if task.Status == models.TaskPending {
		e.notifier.TaskCreated(ctx, task)
	}
	e.notifier.TaskUpdated(ctx, task)
	return nil
}

func (e *Engine) retagPendingTasks(ctx context.Context, operationID string, status models.TaskStatus) error {
	tasks, err := e.store.TasksForOperation(ctx, operationID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if task.Status != models.TaskPending {
			continue
		}
		task.Status = status
		if err := e.saveTask(ctx, task); err != nil {
			return err
		}
	}
	return nil
}
