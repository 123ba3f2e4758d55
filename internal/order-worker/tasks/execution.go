package tasks

import (
	"context"
	"log"
	"time"

	"pizza-flow-service/internal/models"
)

// Reporter sends a single TaskExecution report to the server and returns
// its verdict. A claim rejection surfaces as an error.
type Reporter interface {
	Send(ctx context.Context, exec *models.TaskExecution) error
}

// Execution binds a pulled TaskExecution to its runner. It owns the
// claim-then-run protocol: a pending execution is claimed by reporting
// running with a fresh started_at, and only runs once the server accepts.
type Execution struct {
	exec    *models.TaskExecution
	runner  Runner
	reports Reporter
}

func NewExecution(exec *models.TaskExecution, runner Runner, reports Reporter) *Execution {
	return &Execution{exec: exec, runner: runner, reports: reports}
}

func (e *Execution) Exec() *models.TaskExecution { return e.exec }

// Execute advances the execution one step: claim + run for fresh work, a
// wait re-check for waiting work. Run errors are captured into the
// execution rather than crashing the executor.
func (e *Execution) Execute(ctx context.Context) *models.TaskExecution {
	log.Printf("Executing task %s (%s), status %s", e.exec.UUID, e.exec.Name, e.exec.Status)

	if e.exec.Status == models.TaskPending {
		now := time.Now()
		e.exec.Status = models.TaskRunning
		e.exec.StartedAt = &now
		if err := e.reports.Send(ctx, e.exec); err != nil {
			// Claim rejected: another worker owns it. Leave it alone.
			log.Printf("Claim for task %s rejected: %v", e.exec.UUID, err)
			e.exec.Status = models.TaskPending
			e.exec.StartedAt = nil
			return e.exec
		}
	}

	var err error
	if e.exec.Status == models.TaskWaiting || e.exec.Status == models.TaskPendingWait {
		err = e.wait(ctx)
		now := time.Now()
		e.exec.LastRefresh = &now
	} else {
		if e.exec.StartedAt == nil {
			now := time.Now()
			e.exec.StartedAt = &now
		}
		err = e.runner.Run(ctx, e.exec)
	}
	if err != nil {
		log.Printf("Error executing task %s: %v", e.exec.UUID, err)
		e.exec.Error = err.Error()
		e.exec.Status = models.TaskErrored
	}
	if e.exec.Status == models.TaskCompleted || e.exec.Status == models.TaskErrored {
		now := time.Now()
		e.exec.CompletedAt = &now
	}
	return e.exec
}

func (e *Execution) wait(ctx context.Context) error {
	if waiter, ok := e.runner.(Waiter); ok {
		return waiter.OnWait(ctx, e.exec)
	}
	// Runner has no wait check; the status stands until one resolves it.
	return nil
}
