// Package ledger persists the ingestion task state machine:
// pending -> running -> {completed, failed}, plus periodic retention
// cleanup of finished rows.
package ledger

import (
	"context"
	"errors"
	"time"

	apierrors "github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/metrics"
	"github.com/soundtrace/soundtrace/internal/models"
	"gorm.io/gorm"
)

// ErrTaskNotFound is returned by reads when no task matches.
var ErrTaskNotFound = errors.New("task not found")

// ErrIllegalTransition is returned when a caller tries to move a task to a
// status its current status cannot reach (models.Task.CanTransitionTo).
var ErrIllegalTransition = errors.New("illegal task transition")

// Ledger is the task ledger's interface to the ingestion pipeline and the
// /tasks/{id} surface.
type Ledger interface {
	Create(ctx context.Context, id string, taskType models.TaskType, sourceURL string, totalItems int) (*models.Task, error)
	Get(ctx context.Context, id string) (*models.Task, error)
	Transition(ctx context.Context, id string, next models.TaskStatus) error
	IncrementProcessed(ctx context.Context, id string) error
	SetResult(ctx context.Context, id string, resultBlob string) error
	SweepCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
	CountsByStatus(ctx context.Context) (map[models.TaskStatus]int64, error)
}

type ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) Ledger {
	return &ledger{db: db}
}

func (l *ledger) Create(ctx context.Context, id string, taskType models.TaskType, sourceURL string, totalItems int) (*models.Task, error) {
	task := &models.Task{
		ID:         id,
		TaskType:   taskType,
		SourceURL:  sourceURL,
		Status:     models.TaskStatusPending,
		TotalItems: totalItems,
	}
	if err := l.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, apierrors.StoreErr("task_create", err)
	}
	metrics.Get().TaskTransitions.WithLabelValues("none", string(models.TaskStatusPending)).Inc()
	return task, nil
}

func (l *ledger) Get(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := l.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, apierrors.StoreErr("task_get", err)
	}
	return &task, nil
}

// Transition advances a task's status, enforcing the monotonic state
// machine and stamping started_at/completed_at as appropriate. Only the
// worker owning a task is expected to call this.
func (l *ledger) Transition(ctx context.Context, id string, next models.TaskStatus) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.First(&task, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		if !task.CanTransitionTo(next) {
			return ErrIllegalTransition
		}

		prev := task.Status
		updates := map[string]interface{}{"status": next}
		now := time.Now()
		switch next {
		case models.TaskStatusRunning:
			updates["started_at"] = now
		case models.TaskStatusCompleted, models.TaskStatusFailed:
			updates["completed_at"] = now
		}

		if err := tx.Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		metrics.Get().TaskTransitions.WithLabelValues(string(prev), string(next)).Inc()
		return nil
	})
}

// IncrementProcessed bumps a playlist task's processed_items counter by
// one, used by child-track completions.
func (l *ledger) IncrementProcessed(ctx context.Context, id string) error {
	err := l.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", id).
		UpdateColumn("processed_items", gorm.Expr("processed_items + 1")).Error
	if err != nil {
		return apierrors.StoreErr("task_increment_processed", err)
	}
	return nil
}

func (l *ledger) SetResult(ctx context.Context, id string, resultBlob string) error {
	err := l.db.WithContext(ctx).Model(&models.Task{}).
		Where("id = ?", id).
		Update("result_blob", resultBlob).Error
	if err != nil {
		return apierrors.StoreErr("task_set_result", err)
	}
	return nil
}

// SweepCompleted deletes completed tasks whose completed_at is older than
// olderThan, returning the number of rows removed.
func (l *ledger) SweepCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := l.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", models.TaskStatusCompleted, cutoff).
		Delete(&models.Task{})
	if res.Error != nil {
		return 0, apierrors.StoreErr("task_sweep", res.Error)
	}
	return res.RowsAffected, nil
}

// CountsByStatus returns the number of tasks in each status, for the
// /stats summary endpoint.
func (l *ledger) CountsByStatus(ctx context.Context) (map[models.TaskStatus]int64, error) {
	var rows []struct {
		Status models.TaskStatus
		Count  int64
	}
	err := l.db.WithContext(ctx).Model(&models.Task{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, apierrors.StoreErr("task_counts_by_status", err)
	}

	counts := make(map[models.TaskStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
