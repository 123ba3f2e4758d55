package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus enumerates the task state machine, shared by server and worker.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskRunning     TaskStatus = "running"
	TaskWaiting     TaskStatus = "waiting"      // worker-local poll loop in progress
	TaskPendingWait TaskStatus = "pending_wait" // interrupted wait, resumable server side
	TaskCompleted   TaskStatus = "completed"
	TaskErrored     TaskStatus = "errored"
	TaskCancelled   TaskStatus = "cancelled"
	TaskPaused      TaskStatus = "paused"
)

// DefaultWaitTime is the interval in seconds between wait polls when a task
// does not set its own.
const DefaultWaitTime = 30

// Task is one step of an operation, assigned to a region and executed by
// exactly one worker at a time. Name identifies what logic to run; TaskID is
// a small sequential id used for ordering within the operation.
type Task struct {
	UUID        string     `json:"uuid" gorm:"primaryKey"`
	TaskID      int        `json:"task_id"`
	Name        string     `json:"task" gorm:"column:task;index"`
	Region      string     `json:"region" gorm:"index"`
	OperationID string     `json:"operation_id,omitempty" gorm:"index"` // empty for unattached tasks
	Parameters  JSONMap    `json:"parameters"`
	Retries     int        `json:"retries"`
	MaxRetries  *int       `json:"max_retries"`
	Status      TaskStatus `json:"status" gorm:"index"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	LastRefresh *time.Time `json:"last_refresh"`
	Error       string     `json:"error,omitempty"`
	Result      JSONMap    `json:"result"`
	WaitTime    int        `json:"wait_time"`
	MaxWaitTime *int       `json:"max_wait_time"`
}

func (Task) TableName() string { return "tasks" }

// NewTask builds a pending task owned by an operation.
func NewTask(operationID, name, region string, taskID int, parameters JSONMap) *Task {
	return &Task{
		UUID:        uuid.NewString(),
		TaskID:      taskID,
		Name:        name,
		Region:      region,
		OperationID: operationID,
		Parameters:  parameters,
		Status:      TaskPending,
		Result:      JSONMap{},
		WaitTime:    DefaultWaitTime,
	}
}

// Execution converts the stored task into its wire projection.
func (t *Task) Execution() *TaskExecution {
	return &TaskExecution{
		UUID:        t.UUID,
		TaskID:      t.TaskID,
		Name:        t.Name,
		Region:      t.Region,
		OperationID: t.OperationID,
		Parameters:  t.Parameters,
		Retries:     t.Retries,
		MaxRetries:  t.MaxRetries,
		Status:      t.Status,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		LastRefresh: t.LastRefresh,
		Error:       t.Error,
		Result:      t.Result,
		WaitTime:    t.WaitTime,
		MaxWaitTime: t.MaxWaitTime,
	}
}

// TaskExecution is the worker-local projection of a Task, exchanged across
// the distribution protocol and reconciled by UUID on every report.
type TaskExecution struct {
	UUID        string     `json:"uuid"`
	TaskID      int        `json:"task_id"`
	Name        string     `json:"task"`
	Region      string     `json:"region"`
	OperationID string     `json:"operation_id,omitempty"`
	Parameters  JSONMap    `json:"parameters"`
	Retries     int        `json:"retries"`
	MaxRetries  *int       `json:"max_retries"`
	Status      TaskStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	LastRefresh *time.Time `json:"last_refresh"`
	Error       string     `json:"error,omitempty"`
	Result      JSONMap    `json:"result"`
	WaitTime    int        `json:"wait_time"`
	MaxWaitTime *int       `json:"max_wait_time"`
}

// Clone returns a shallow copy safe to hand to another goroutine.
func (e *TaskExecution) Clone() *TaskExecution {
	c := *e
	return &c
}

// TimesEqual compares two optional timestamps.
func TimesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
