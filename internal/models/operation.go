package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationStatus enumerates the operation state machine.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationRunning   OperationStatus = "running"
	OperationCompleted OperationStatus = "completed"
	OperationErrored   OperationStatus = "errored"
	OperationPaused    OperationStatus = "paused"
	OperationCancelled OperationStatus = "cancelled"
)

// Terminal reports whether no further transition is legal from s.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationCancelled
}

// Operation is a top-level unit of work composed of dependency-linked tasks.
// Parameters are set once at creation and never mutated afterwards.
type Operation struct {
	UUID       string          `json:"uuid" gorm:"primaryKey;index"`
	Operation  string          `json:"operation" gorm:"index"` // kind, e.g. create_pizza
	Parameters JSONMap         `json:"parameters"`
	RFAID      string          `json:"rfa_id,omitempty"` // originating approval request, if any
	Status     OperationStatus `json:"status" gorm:"index"`
	Result     JSONMap         `json:"result"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    *time.Time      `json:"end_date"`
}

func (Operation) TableName() string { return "operations" }

// NewOperation builds a pending operation with a fresh identity.
func NewOperation(kind string, parameters JSONMap, rfaID string) *Operation {
	return &Operation{
		UUID:       uuid.NewString(),
		Operation:  kind,
		Parameters: parameters,
		RFAID:      rfaID,
		Status:     OperationPending,
		Result:     JSONMap{},
		StartDate:  time.Now(),
	}
}
