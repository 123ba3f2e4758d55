package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"pizza-flow-service/internal/models"
)

// Cache is the volatile half of the persistence layer. Entities are stored
// as JSON documents keyed by "<entity-type>.<id>"; a set-valued index
// "operations.<id>.tasks" enumerates child task ids and
// "regions.<region>.tasks" the tasks routed to a region.
type Cache struct {
	rdb *redis.Client
}

// NewCacheFromEnv connects to REDIS_ADDR. Returns nil when unset: the system
// runs without a cache, the durable store serves everything.
func NewCacheFromEnv() *Cache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		log.Println("REDIS_ADDR not set, running without cache")
		return nil
	}
	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func operationKey(id string) string { return "operations." + id }

func taskKey(id string) string { return "tasks." + id }

func operationTasksKey(id string) string { return "operations." + id + ".tasks" }

func regionTasksKey(region string) string { return "regions." + region + ".tasks" }

func (c *Cache) SaveOperation(ctx context.Context, op *models.Operation) error {
	doc, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation %s: %w", op.UUID, err)
	}
	return c.rdb.Set(ctx, operationKey(op.UUID), doc, 0).Err()
}

func (c *Cache) LoadOperation(ctx context.Context, id string) (*models.Operation, error) {
	doc, err := c.rdb.Get(ctx, operationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var op models.Operation
	if err := json.Unmarshal(doc, &op); err != nil {
		return nil, fmt.Errorf("unmarshal cached operation %s: %w", id, err)
	}
	return &op, nil
}

func (c *Cache) DeleteOperation(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, operationKey(id), operationTasksKey(id)).Err()
}

func (c *Cache) SaveTask(ctx context.Context, task *models.Task) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.UUID, err)
	}
	if err := c.rdb.Set(ctx, taskKey(task.UUID), doc, 0).Err(); err != nil {
		return err
	}
	if task.OperationID != "" {
		if err := c.rdb.SAdd(ctx, operationTasksKey(task.OperationID), task.UUID).Err(); err != nil {
			return err
		}
	}
	return c.rdb.SAdd(ctx, regionTasksKey(task.Region), task.UUID).Err()
}

func (c *Cache) LoadTask(ctx context.Context, id string) (*models.Task, error) {
	doc, err := c.rdb.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task models.Task
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, fmt.Errorf("unmarshal cached task %s: %w", id, err)
	}
	return &task, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	task, err := c.LoadTask(ctx, id)
	if err != nil {
		return err
	}
	if task != nil {
		if task.OperationID != "" {
			if err := c.rdb.SRem(ctx, operationTasksKey(task.OperationID), id).Err(); err != nil {
				return err
			}
		}
		if err := c.rdb.SRem(ctx, regionTasksKey(task.Region), id).Err(); err != nil {
			return err
		}
	}
	return c.rdb.Del(ctx, taskKey(id)).Err()
}

// TasksForRegion loads every indexed task for a region whose status is in
// the given set. A task listed in the index but missing its document is an
// error: the caller falls back to the durable store.
func (c *Cache) TasksForRegion(ctx context.Context, region string, statuses []models.TaskStatus) ([]*models.Task, error) {
	ids, err := c.rdb.SMembers(ctx, regionTasksKey(region)).Result()
	if err != nil {
		return nil, err
	}
	wanted := make(map[models.TaskStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	tasks := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		task, err := c.LoadTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, fmt.Errorf("task %s indexed for region %s but not cached", id, region)
		}
		if wanted[task.Status] {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}
