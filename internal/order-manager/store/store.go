package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pizza-flow-service/internal/models"
)

// ErrNotFound is returned when neither layer holds the requested entity.
var ErrNotFound = errors.New("record not found")

// EligibleStatuses are the task statuses a region worker may be handed.
var EligibleStatuses = []models.TaskStatus{
	models.TaskPending,
	models.TaskWaiting,
	models.TaskPendingWait,
}

// Store is the dual persistence layer: a volatile cache in front of a
// durable relational store. Writes go cache-first best-effort, the durable
// write is authoritative and must succeed. Reads try the cache and fall back
// to the durable store. Cache errors are logged and swallowed, never
// surfaced to callers.
type Store struct {
	db    *gorm.DB
	cache *Cache
}

func New(db *gorm.DB, cache *Cache) *Store {
	return &Store{db: db, cache: cache}
}

func (s *Store) SaveOperation(ctx context.Context, op *models.Operation) error {
	if s.cache != nil {
		if err := s.cache.SaveOperation(ctx, op); err != nil {
			log.Printf("cache: save operation %s: %v", op.UUID, err)
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(op).Error
	if err != nil {
		return fmt.Errorf("persist operation %s: %w", op.UUID, err)
	}
	return nil
}

func (s *Store) LoadOperation(ctx context.Context, id string) (*models.Operation, error) {
	if s.cache != nil {
		op, err := s.cache.LoadOperation(ctx, id)
		if err != nil {
			log.Printf("cache: load operation %s: %v", id, err)
		} else if op != nil {
			return op, nil
		}
	}
	var op models.Operation
	err := s.db.WithContext(ctx).First(&op, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load operation %s: %w", id, err)
	}
	return &op, nil
}

// ListOperations filters by status set and limit. The status-set predicate
// is served by the durable store; the cache carries no operation index.
func (s *Store) ListOperations(ctx context.Context, statuses []models.OperationStatus, limit int) ([]*models.Operation, error) {
	query := s.db.WithContext(ctx).Model(&models.Operation{}).Order("start_date DESC")
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ops []*models.Operation
	if err := query.Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return ops, nil
}

func (s *Store) DeleteOperation(ctx context.Context, id string) error {
	if s.cache != nil {
		if err := s.cache.DeleteOperation(ctx, id); err != nil {
			log.Printf("cache: delete operation %s: %v", id, err)
		}
	}
	if err := s.db.WithContext(ctx).Delete(&models.Operation{}, "uuid = ?", id).Error; err != nil {
		return fmt.Errorf("delete operation %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveTask(ctx context.Context, task *models.Task) error {
	if s.cache != nil {
		if err := s.cache.SaveTask(ctx, task); err != nil {
			log.Printf("cache: save task %s: %v", task.UUID, err)
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(task).Error
	if err != nil {
		return fmt.Errorf("persist task %s: %w", task.UUID, err)
	}
	return nil
}

func (s *Store) LoadTask(ctx context.Context, id string) (*models.Task, error) {
	if s.cache != nil {
		task, err := s.cache.LoadTask(ctx, id)
		if err != nil {
			log.Printf("cache: load task %s: %v", id, err)
		} else if task != nil {
			return task, nil
		}
	}
	var task models.Task
	err := s.db.WithContext(ctx).First(&task, "uuid = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return &task, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if s.cache != nil {
		if err := s.cache.DeleteTask(ctx, id); err != nil {
			log.Printf("cache: delete task %s: %v", id, err)
		}
	}
	if err := s.db.WithContext(ctx).Delete(&models.Task{}, "uuid = ?", id).Error; err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// TasksForOperation returns every task owned by an operation. Always served
// by the durable store: the scheduler's dependency computation needs the
// complete task set, which a cold cache cannot guarantee.
func (s *Store) TasksForOperation(ctx context.Context, operationID string) ([]*models.Task, error) {
	var tasks []*models.Task
	err := s.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("task_id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("load tasks for operation %s: %w", operationID, err)
	}
	return tasks, nil
}

// TasksForRegion returns the eligible tasks for a region worker. The cache's
// region index is tried first; any cache failure falls back to the durable
// store, transparent to the caller.
func (s *Store) TasksForRegion(ctx context.Context, region string) ([]*models.Task, error) {
	if s.cache != nil {
		tasks, err := s.cache.TasksForRegion(ctx, region, EligibleStatuses)
		if err == nil {
			return tasks, nil
		}
		log.Printf("cache: tasks for region %s: %v, falling back to durable store", region, err)
	}
	var tasks []*models.Task
	err := s.db.WithContext(ctx).
		Where("region = ? AND status IN ?", region, EligibleStatuses).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("load tasks for region %s: %w", region, err)
	}
	return tasks, nil
}
