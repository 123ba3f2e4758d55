package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pizza-flow-service/internal/models"
)

// fakeReporter records sent reports and can reject claims.
type fakeReporter struct {
	mu   sync.Mutex
	sent []*models.TaskExecution
	err  error
}

func (f *fakeReporter) Send(_ context.Context, exec *models.TaskExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, exec.Clone())
	return nil
}

func (f *fakeReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func pendingExec(name string) *models.TaskExecution {
	return &models.TaskExecution{
		UUID:       "task-1",
		Name:       name,
		Region:     "eu-west-3",
		Parameters: models.JSONMap{"name": "Margherita"},
		Status:     models.TaskPending,
		Result:     models.JSONMap{},
		WaitTime:   models.DefaultWaitTime,
	}
}

func TestExecuteClaimsThenRuns(t *testing.T) {
	reporter := &fakeReporter{}
	e := NewExecution(pendingExec("make_dough"), &MakeDough{}, reporter)

	res := e.Execute(context.Background())

	assert.Equal(t, models.TaskCompleted, res.Status)
	assert.NotNil(t, res.StartedAt)
	assert.NotNil(t, res.CompletedAt)
	assert.Equal(t, "done", res.Result["dough"])
	// The claim report went out before the run.
	assert.Equal(t, 1, reporter.count())
	assert.Equal(t, models.TaskRunning, reporter.sent[0].Status)
}

func TestExecuteClaimRejectedLeavesPending(t *testing.T) {
	reporter := &fakeReporter{err: errors.New("task already running")}
	e := NewExecution(pendingExec("make_dough"), &MakeDough{}, reporter)

	res := e.Execute(context.Background())

	assert.Equal(t, models.TaskPending, res.Status)
	assert.Nil(t, res.StartedAt)
	assert.Nil(t, res.CompletedAt)
}

type failingRunner struct{}

func (failingRunner) Identifier() string { return "fail" }
func (failingRunner) Run(context.Context, *models.TaskExecution) error {
	return errors.New("no flour left")
}

func TestExecuteRunErrorCaptured(t *testing.T) {
	reporter := &fakeReporter{}
	e := NewExecution(pendingExec("fail"), failingRunner{}, reporter)

	res := e.Execute(context.Background())

	assert.Equal(t, models.TaskErrored, res.Status)
	assert.Equal(t, "no flour left", res.Error)
	assert.NotNil(t, res.CompletedAt)
}

func TestOvenLifecycle(t *testing.T) {
	oven := NewOven()

	assert.NoError(t, oven.Bake("margherita", 50*time.Millisecond))
	assert.Error(t, oven.Bake("margherita", time.Second))

	done, err := oven.Check("margherita")
	assert.NoError(t, err)
	assert.False(t, done)

	time.Sleep(60 * time.Millisecond)
	done, err = oven.Check("margherita")
	assert.NoError(t, err)
	assert.True(t, done)

	assert.NoError(t, oven.Remove("margherita"))
	assert.Error(t, oven.Remove("margherita"))
	_, err = oven.Check("margherita")
	assert.Error(t, err)
}

func TestOvenCapacity(t *testing.T) {
	oven := NewOven()
	assert.NoError(t, oven.Bake("one", time.Minute))
	assert.NoError(t, oven.Bake("two", time.Minute))
	assert.NoError(t, oven.Bake("three", time.Minute))
	assert.Error(t, oven.Bake("four", time.Minute))

	assert.NoError(t, oven.Remove("one"))
	assert.NoError(t, oven.Bake("four", time.Minute))
}

func TestBakePizzaWaitFlow(t *testing.T) {
	ctx := context.Background()
	bake := &BakePizza{oven: NewOven()}
	exec := pendingExec("bake_pizza")
	exec.Parameters["time"] = float64(0)

	assert.NoError(t, bake.Run(ctx, exec))
	assert.Equal(t, models.TaskWaiting, exec.Status)
	assert.Equal(t, 1, exec.WaitTime)

	// Bake time elapsed: the wait check removes the pizza and completes.
	assert.NoError(t, bake.OnWait(ctx, exec))
	assert.Equal(t, models.TaskCompleted, exec.Status)
	assert.Equal(t, "done", exec.Result["baked"])
}

func TestExecuteWaitUsesWaiter(t *testing.T) {
	reporter := &fakeReporter{}
	bake := &BakePizza{oven: NewOven()}
	exec := pendingExec("bake_pizza")
	exec.Parameters["time"] = float64(0)
	exec.Status = models.TaskWaiting
	assert.NoError(t, bake.oven.Bake("Margherita", 0))

	e := NewExecution(exec, bake, reporter)
	res := e.Execute(context.Background())

	assert.Equal(t, models.TaskCompleted, res.Status)
	assert.NotNil(t, res.LastRefresh)
	// Waiting work is already claimed, no claim report goes out.
	assert.Equal(t, 0, reporter.count())
}

func TestRegistryLookup(t *testing.T) {
	registry := NewPizzaRegistry()

	for _, name := range []string{"make_dough", "add_toppings", "bake_pizza", "deliver_pizza"} {
		runner, err := registry.Get(name)
		assert.NoError(t, err)
		assert.Equal(t, name, runner.Identifier())
	}

	_, err := registry.Get("fold_calzone")
	assert.Error(t, err)
	assert.Len(t, registry.Names(), 4)
}
