package operations

import (
	"context"
	"errors"
	"fmt"

	"pizza-flow-service/internal/models"
)

var (
	// ErrOperationNotFound covers both an absent operation record and an
	// unknown operation kind.
	ErrOperationNotFound = errors.New("operation not found")
	// ErrInvalidTransition rejects an administrative action not legal from
	// the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidParameters rejects operation parameters failing the
	// definition's schema.
	ErrInvalidParameters = errors.New("invalid operation parameters")
)

// Definition declares an operation kind: its task graph and its hooks.
// Engine drives the state machine; definitions only supply the shape.
type Definition interface {
	Identifier() string
	// TaskNames declares every task the operation runs, in nominal order.
	TaskNames() []string
	// Dependencies returns the task names that must be completed before the
	// named task may be materialized.
	Dependencies(taskName string) []string
	// ParameterSchema is a JSON schema for the operation parameters, or ""
	// to skip validation.
	ParameterSchema() string
	// TaskParameters builds the parameters for one task of the operation.
	TaskParameters(op *models.Operation, taskName string) models.JSONMap
	// OnStarted and OnAllTasksCompleted are best-effort hooks.
	OnStarted(ctx context.Context, op *models.Operation)
	OnAllTasksCompleted(ctx context.Context, op *models.Operation)
}

// Base supplies default Definition behavior for embedding.
type Base struct{}

func (Base) Dependencies(string) []string { return nil }

func (Base) ParameterSchema() string { return "" }

func (Base) TaskParameters(op *models.Operation, _ string) models.JSONMap {
	return op.Parameters
}

func (Base) OnStarted(context.Context, *models.Operation) {}

func (Base) OnAllTasksCompleted(context.Context, *models.Operation) {}

// Registry maps operation kinds to their definitions. It is constructed at
// startup and passed to whatever needs kind lookup, never a process-wide
// singleton.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		r.Register(def)
	}
	return r
}

func (r *Registry) Register(def Definition) {
	r.defs[def.Identifier()] = def
}

func (r *Registry) Get(kind string) (Definition, error) {
	def, ok := r.defs[kind]
	if !ok {
		return nil, fmt.Errorf("operation kind %q: %w", kind, ErrOperationNotFound)
	}
	return def, nil
}

// Kinds lists the registered operation kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.defs))
	for kind := range r.defs {
		kinds = append(kinds, kind)
	}
	return kinds
}
