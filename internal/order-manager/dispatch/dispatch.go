package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-manager/notify"
	"pizza-flow-service/internal/order-manager/operations"
	"pizza-flow-service/internal/order-manager/store"
)

var (
	// ErrAlreadyRunning rejects a claim for a task not in pending.
	ErrAlreadyRunning = errors.New("task already running")
	// ErrTaskNotFound rejects a report for an unknown task.
	ErrTaskNotFound = errors.New("task not found")
)

// Service is the server side of the task distribution protocol: it hands
// prioritized eligible tasks to region workers and reconciles their reports
// against the stored tasks.
type Service struct {
	store    *store.Store
	engine   *operations.Engine
	notifier notify.Notifier
}

func NewService(st *store.Store, engine *operations.Engine, notifier notify.Notifier) *Service {
	return &Service{store: st, engine: engine, notifier: notifier}
}

// TasksForRegion returns the prioritized eligible tasks for a region worker.
func (s *Service) TasksForRegion(ctx context.Context, region string) ([]*models.Task, error) {
	tasks, err := s.store.TasksForRegion(ctx, region)
	if err != nil {
		return nil, err
	}
	return Prioritize(tasks), nil
}

// Prioritize filters and orders the worker-visible queue: a pending_wait
// task refreshed within its wait interval is not yet due and is suppressed;
// the rest sort in-flight work before fresh pending work, ties broken by
// older last_refresh, then older started_at.
func Prioritize(tasks []*models.Task) []*models.Task {
	now := time.Now()
	due := make([]*models.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == models.TaskPendingWait && task.LastRefresh != nil {
			waitTime := task.WaitTime
			if waitTime <= 0 {
				waitTime = models.DefaultWaitTime
			}
			if task.LastRefresh.After(now.Add(-time.Duration(waitTime) * time.Second)) {
				continue
			}
		}
		due = append(due, task)
	}

	timeOrNow := func(t *time.Time) time.Time {
		if t == nil {
			return now
		}
		return *t
	}
	sort.SliceStable(due, func(i, j int) bool {
		a, b := due[i], due[j]
		aInFlight := a.Status != models.TaskPending
		bInFlight := b.Status != models.TaskPending
		if aInFlight != bInFlight {
			return aInFlight
		}
		aRefresh, bRefresh := timeOrNow(a.LastRefresh), timeOrNow(b.LastRefresh)
		if !aRefresh.Equal(bRefresh) {
			return aRefresh.Before(bRefresh)
		}
		return timeOrNow(a.StartedAt).Before(timeOrNow(b.StartedAt))
	})
	return due
}

// ReportExecution reconciles a worker report against the stored task.
//
// A running report with a changed started_at is a new run attempt and is
// accepted only from pending, giving single-claim semantics. Anything else
// is a progress update: the stored task is overwritten from the report, so
// duplicate or out-of-order reports for the same started_at simply re-apply
// the same state.
func (s *Service) ReportExecution(ctx context.Context, exec *models.TaskExecution) error {
	task, err := s.store.LoadTask(ctx, exec.UUID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("task %s: %w", exec.UUID, ErrTaskNotFound)
	}
	if err != nil {
		return err
	}

	if exec.Status == models.TaskRunning && !models.TimesEqual(exec.StartedAt, task.StartedAt) {
		if task.Status != models.TaskPending {
			return fmt.Errorf("task %s: %w", task.UUID, ErrAlreadyRunning)
		}
		task.StartedAt = exec.StartedAt
		task.Status = models.TaskRunning
	} else {
		if exec.StartedAt != nil {
			task.StartedAt = exec.StartedAt
		} else if task.StartedAt == nil {
			now := time.Now()
			task.StartedAt = &now
		}
		task.CompletedAt = exec.CompletedAt
		task.Result = exec.Result
		task.Error = exec.Error
		task.Status = exec.Status
		task.WaitTime = exec.WaitTime
		task.MaxWaitTime = exec.MaxWaitTime
		if exec.LastRefresh != nil {
			task.LastRefresh = exec.LastRefresh
		}
	}

	if err := s.store.SaveTask(ctx, task); err != nil {
		return err
	}
	log.Printf("Task %s updated with status %s", task.UUID, task.Status)
	s.notifier.TaskUpdated(ctx, task)

	switch exec.Status {
	case models.TaskCompleted:
		return s.onTaskComplete(ctx, task)
	case models.TaskErrored:
		return s.engine.OnTaskError(ctx, task)
	}
	return nil
}

func (s *Service) onTaskComplete(ctx context.Context, task *models.Task) error {
	// A completed unattached task is not linked to any scheduler; just drop it.
	if task.OperationID == "" {
		return s.store.DeleteTask(ctx, task.UUID)
	}
	err := s.engine.OnTaskComplete(ctx, task)
	if err == nil || errors.Is(err, operations.ErrOperationNotFound) {
		return err
	}
	// The report itself was accepted and persisted; scheduling hiccups are
	// logged, not surfaced to the worker.
	log.Printf("Error handling completion of task %s: %v", task.UUID, err)
	return nil
}
