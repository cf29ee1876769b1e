package db

import (
	"context"
	"errors"

	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/domain"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
	"gorm.io/gorm"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "id", task.ID, "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "id", task.ID, "owner", task.OwnerID)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ports.ErrTaskNotFound
		}
		r.log.Errorw("task_repo_get_failed", "id", id, "error", err)
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) GetByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := r.db.WithContext(ctx).Where("status = ?", status).Find(&tasks).Error; err != nil {
		r.log.Errorw("task_repo_list_by_status_failed", "status", status, "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) UpdateProgress(ctx context.Context, id string, status domain.TaskStatus, progress int, stage, message string) error {
	res := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND status NOT IN ?", id, []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed}).
		Updates(map[string]any{
			"status":   status,
			"progress": progress,
			"stage":    stage,
			"message":  message,
		})
	if res.Error != nil {
		r.log.Errorw("task_repo_update_progress_failed", "id", id, "error", res.Error)
		return res.Error
	}
	return nil
}

func (r *taskRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.markTerminal(ctx, id, domain.TaskStatusCompleted, map[string]any{
		"status":   domain.TaskStatusCompleted,
		"progress": 100,
		"stage":    "done",
		"message":  "Transcription completed",
	})
}

func (r *taskRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.markTerminal(ctx, id, domain.TaskStatusFailed, map[string]any{
		"status":  domain.TaskStatusFailed,
		"stage":   "failed",
		"message": "Transcription failed",
		"error":   errMsg,
	})
}

// markTerminal guards against overwriting a state that is already final.
func (r *taskRepository) markTerminal(ctx context.Context, id string, status domain.TaskStatus, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND status NOT IN ?", id, []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		r.log.Errorw("task_repo_mark_terminal_failed", "id", id, "status", status, "error", res.Error)
		return res.Error
	}
	r.log.Infow("task_repo_mark_terminal_ok", "id", id, "status", status, "rows", res.RowsAffected)
	return nil
}
