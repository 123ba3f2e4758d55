package tasks

import (
	"context"
	"fmt"

	"pizza-flow-service/internal/models"
)

// Runner holds the domain logic for one task name. Implementations mutate
// the execution (status, result) and return an error only for failures that
// should mark the task errored.
type Runner interface {
	Identifier() string
	Run(ctx context.Context, exec *models.TaskExecution) error
}

// Waiter is implemented by runners that poll an external condition: OnWait
// re-checks the condition and either keeps the execution waiting or moves it
// to a terminal status.
type Waiter interface {
	OnWait(ctx context.Context, exec *models.TaskExecution) error
}

// Registry maps task names to runners. It is constructed at startup and
// passed to the retriever, never a process-wide singleton.
type Registry struct {
	runners map[string]Runner
}

func NewRegistry(runners ...Runner) *Registry {
	r := &Registry{runners: make(map[string]Runner, len(runners))}
	for _, runner := range runners {
		r.Register(runner)
	}
	return r
}

func (r *Registry) Register(runner Runner) {
	r.runners[runner.Identifier()] = runner
}

func (r *Registry) Get(name string) (Runner, error) {
	runner, ok := r.runners[name]
	if !ok {
		return nil, fmt.Errorf("no task registered for name: %s", name)
	}
	return runner, nil
}

// Names lists the task capabilities of this worker.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	return names
}
