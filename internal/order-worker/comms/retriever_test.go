package comms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"pizza-flow-service/internal/models"
	"pizza-flow-service/internal/order-worker/tasks"
)

type nopReporter struct{}

func (nopReporter) Send(context.Context, *models.TaskExecution) error { return nil }

func TestBindRunnersSkipsUnknownTasks(t *testing.T) {
	registry := tasks.NewPizzaRegistry()

	execs := []*models.TaskExecution{
		{UUID: "t1", Name: "make_dough", Status: models.TaskPending},
		{UUID: "t2", Name: "fold_calzone", Status: models.TaskPending},
		{UUID: "t3", Name: "deliver_pizza", Status: models.TaskPending},
	}
	bound := BindRunners(execs, registry, nopReporter{})

	assert.Len(t, bound, 2)
	assert.Equal(t, "t1", bound[0].Exec().UUID)
	assert.Equal(t, "t3", bound[1].Exec().UUID)
}
