package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmforge/vmforge/internal/config"
	"github.com/vmforge/vmforge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoPendingTask is returned by ClaimNext when the queue is empty. The
// worker treats it as "idle this cycle", not as a failure.
var ErrNoPendingTask = errors.New("no pending task")

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to the given transaction, so Enqueue can
// participate in the dispatcher's admission transaction.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

// lockForUpdate adds a row lock on dialects that support it. SQLite (used by
// the unit tests) serializes writers on its own and rejects FOR UPDATE.
func lockForUpdate(tx *gorm.DB, skipLocked bool) *gorm.DB {
	if tx.Dialector.Name() != "postgres" {
		return tx
	}
	locking := clause.Locking{Strength: "UPDATE"}
	if skipLocked {
		locking.Options = "SKIP LOCKED"
	}
	return tx.Clauses(locking)
}

// Enqueue inserts a new pending task.
func (r *TaskRepository) Enqueue(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = config.TaskStatusPending
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = 3
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest pending task: a locking read inside
// a transaction picks the row, flips it to processing and stamps started_at.
// Concurrent callers never claim the same row. Retried tasks keep their
// original created_at, so old work is never starved by newer submissions.
func (r *TaskRepository) ClaimNext(ctx context.Context) (*models.Task, error) {
	var claimed models.Task

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		err := lockForUpdate(tx, true).
			Where("status = ?", config.TaskStatusPending).
			Order("created_at ASC, id ASC").
			First(&task).Error
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Task{}).
			Where("id = ?", task.ID).
			Updates(map[string]any{
				"status":     config.TaskStatusProcessing,
				"started_at": now,
			}).Error; err != nil {
			return err
		}

		task.Status = config.TaskStatusProcessing
		task.StartedAt = &now
		claimed = task
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoPendingTask
		}
		return nil, fmt.Errorf("claim next task: %w", err)
	}

	return &claimed, nil
}

// Complete marks a task terminal-success and stores its result. Calling it
// on an already-terminal task is a no-op.
func (r *TaskRepository) Complete(ctx context.Context, id uint, result datatypes.JSON) error {
	err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ? AND status NOT IN ?", id,
			[]string{config.TaskStatusCompleted, config.TaskStatusFailed}).
		Updates(map[string]any{
			"status":      config.TaskStatusCompleted,
			"result":      result,
			"finished_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Fail records a failed attempt and applies the retry policy: while the
// incremented attempt count stays below max_retries the task goes back to
// pending (keeping its original created_at and started_at), otherwise it is
// marked failed and finished_at is stamped. Callers never decide retry vs
// terminal themselves. Already-terminal tasks are left untouched.
func (r *TaskRepository) Fail(ctx context.Context, id uint, errMsg string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := lockForUpdate(tx, false).First(&task, "id = ?", id).Error; err != nil {
			return err
		}

		if config.TaskTerminal(task.Status) {
			return nil
		}

		updates := map[string]any{
			"attempts": task.Attempts + 1,
			"error":    errMsg,
		}
		if task.Attempts+1 < task.MaxRetries {
			updates["status"] = config.TaskStatusPending
		} else {
			updates["status"] = config.TaskStatusFailed
			updates["finished_at"] = time.Now().UTC()
		}

		return tx.Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task not found: %w", err)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("status = ?", config.TaskStatusPending).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

func (r *TaskRepository) ProcessingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("status = ?", config.TaskStatusProcessing).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("processing count: %w", err)
	}
	return count, nil
}

// Cleanup deletes terminal tasks that finished more than daysToKeep days ago.
func (r *TaskRepository) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)
	res := r.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?",
			[]string{config.TaskStatusCompleted, config.TaskStatusFailed}, cutoff).
		Delete(&models.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ReleaseStale requeues processing tasks whose claim is older than the given
// age. Such rows are orphans left behind by a worker that died mid-task;
// resetting them to pending makes the work retryable after a restart.
func (r *TaskRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := r.db.WithContext(ctx).Model(&models.Task{}).
		Where("status = ? AND started_at < ?", config.TaskStatusProcessing, cutoff).
		Updates(map[string]any{
			"status":     config.TaskStatusPending,
			"started_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release stale tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
