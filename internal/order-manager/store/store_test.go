package store

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pizza-flow-service/internal/models"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	dbFilePath := "test_store_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ".db"
	gormDB, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database '%s': %v", dbFilePath, err)
	}
	if err := gormDB.AutoMigrate(&models.Operation{}, &models.Task{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	// No cache configured: every read and write must be served by the
	// durable store alone.
	st := New(gormDB, nil)
	cleanup := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
		os.Remove(dbFilePath)
	}
	return st, cleanup
}

func TestSaveAndLoadOperation(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	op := models.NewOperation("create_pizza", models.JSONMap{"name": "Margherita"}, "rfa-1")
	assert.NoError(t, st.SaveOperation(ctx, op))

	loaded, err := st.LoadOperation(ctx, op.UUID)
	assert.NoError(t, err)
	assert.Equal(t, op.UUID, loaded.UUID)
	assert.Equal(t, models.OperationPending, loaded.Status)
	assert.Equal(t, "Margherita", loaded.Parameters.String("name", ""))

	// Saving the same UUID again is an update, not a duplicate row.
	op.Status = models.OperationRunning
	assert.NoError(t, st.SaveOperation(ctx, op))
	loaded, err = st.LoadOperation(ctx, op.UUID)
	assert.NoError(t, err)
	assert.Equal(t, models.OperationRunning, loaded.Status)
}

func TestLoadOperationNotFound(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := st.LoadOperation(context.Background(), "no-such-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOperationsFilterAndLimit(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		op := models.NewOperation("create_pizza", models.JSONMap{}, "")
		assert.NoError(t, st.SaveOperation(ctx, op))
	}
	done := models.NewOperation("create_pizza", models.JSONMap{}, "")
	done.Status = models.OperationCompleted
	assert.NoError(t, st.SaveOperation(ctx, done))

	ops, err := st.ListOperations(ctx, []models.OperationStatus{models.OperationPending}, 0)
	assert.NoError(t, err)
	assert.Len(t, ops, 3)

	ops, err = st.ListOperations(ctx, nil, 2)
	assert.NoError(t, err)
	assert.Len(t, ops, 2)

	ops, err = st.ListOperations(ctx, []models.OperationStatus{models.OperationCompleted}, 0)
	assert.NoError(t, err)
	assert.Len(t, ops, 1)
	assert.Equal(t, done.UUID, ops[0].UUID)
}

func TestSaveAndLoadTask(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	task := models.NewTask("op-1", "make_dough", "eu-west-3", 1, models.JSONMap{"name": "Margherita"})
	assert.NoError(t, st.SaveTask(ctx, task))

	loaded, err := st.LoadTask(ctx, task.UUID)
	assert.NoError(t, err)
	assert.Equal(t, "make_dough", loaded.Name)
	assert.Equal(t, models.TaskPending, loaded.Status)
	assert.Equal(t, models.DefaultWaitTime, loaded.WaitTime)

	now := time.Now()
	task.Status = models.TaskRunning
	task.StartedAt = &now
	assert.NoError(t, st.SaveTask(ctx, task))
	loaded, err = st.LoadTask(ctx, task.UUID)
	assert.NoError(t, err)
	assert.Equal(t, models.TaskRunning, loaded.Status)
	assert.NotNil(t, loaded.StartedAt)
}

func TestDeleteTaskAndOperation(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	op := models.NewOperation("create_pizza", models.JSONMap{}, "")
	assert.NoError(t, st.SaveOperation(ctx, op))
	task := models.NewTask(op.UUID, "make_dough", "eu-west-3", 1, models.JSONMap{})
	assert.NoError(t, st.SaveTask(ctx, task))

	assert.NoError(t, st.DeleteTask(ctx, task.UUID))
	_, err := st.LoadTask(ctx, task.UUID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, st.DeleteOperation(ctx, op.UUID))
	_, err = st.LoadOperation(ctx, op.UUID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTasksForOperationOrdered(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for i := 3; i >= 1; i-- {
		task := models.NewTask("op-1", "step", "eu-west-3", i, models.JSONMap{})
		assert.NoError(t, st.SaveTask(ctx, task))
	}
	other := models.NewTask("op-2", "step", "eu-west-3", 1, models.JSONMap{})
	assert.NoError(t, st.SaveTask(ctx, other))

	tasks, err := st.TasksForOperation(ctx, "op-1")
	assert.NoError(t, err)
	assert.Len(t, tasks, 3)
	for i, task := range tasks {
		assert.Equal(t, i+1, task.TaskID)
	}
}

func TestTasksForRegionEligibleOnly(t *testing.T) {
	st, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	byStatus := map[models.TaskStatus]string{}
	for _, status := range []models.TaskStatus{
		models.TaskPending, models.TaskWaiting, models.TaskPendingWait,
		models.TaskRunning, models.TaskCompleted, models.TaskCancelled, models.TaskPaused,
	} {
		task := models.NewTask("op-1", "step", "eu-west-3", 1, models.JSONMap{})
		task.Status = status
		assert.NoError(t, st.SaveTask(ctx, task))
		byStatus[status] = task.UUID
	}
	elsewhere := models.NewTask("op-1", "step", "us-east-1", 1, models.JSONMap{})
	assert.NoError(t, st.SaveTask(ctx, elsewhere))

	tasks, err := st.TasksForRegion(ctx, "eu-west-3")
	assert.NoError(t, err)
	assert.Len(t, tasks, 3)
	seen := map[string]bool{}
	for _, task := range tasks {
		seen[task.UUID] = true
	}
	assert.True(t, seen[byStatus[models.TaskPending]])
	assert.True(t, seen[byStatus[models.TaskWaiting]])
	assert.True(t, seen[byStatus[models.TaskPendingWait]])
}
