package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/domain"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

// TaskService handles the producing side of the upload flow: persist the
// record first, then enqueue. If the enqueue fails the record is failed
// immediately so no task can sit in PENDING with nothing behind it.
type TaskService struct {
	tasks    ports.TaskRepository
	enqueuer ports.Enqueuer
	log      *logger.Logger
}

func NewTaskService(tasks ports.TaskRepository, enqueuer ports.Enqueuer, log *logger.Logger) *TaskService {
	return &TaskService{tasks: tasks, enqueuer: enqueuer, log: log}
}

func (s *TaskService) CreateTask(ctx context.Context, ownerID, fileName, filePath string) (*domain.Task, error) {
	task := &domain.Task{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Status:    domain.TaskStatusPending,
		Progress:  0,
		Stage:     "queued",
		Message:   "Waiting for a worker",
		FileName:  fileName,
		FilePath:  filePath,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueTranscription(ctx, task.ID, ownerID, filePath); err != nil {
		s.log.Errorw("task_enqueue_failed", "task_id", task.ID, "error", err)
		if ferr := s.tasks.MarkFailed(ctx, task.ID, "failed to enqueue job"); ferr != nil {
			s.log.Errorw("task_mark_failed_after_enqueue_failed", "task_id", task.ID, "error", ferr)
		}
		return nil, err
	}

	s.log.Infow("task_created", "task_id", task.ID, "owner", ownerID, "file", fileName)
	return task, nil
}

// GetTask is the poll fallback read used by clients tracking progress.
func (s *TaskService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.tasks.GetByID(ctx, id)
}
