package ports

import (
	"context"
	"errors"

	"github.com/voxscribe/backend/internal/domain"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	GetByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error)
	UpdateProgress(ctx context.Context, id string, status domain.TaskStatus, progress int, stage, message string) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// QueueCounts is a point-in-time sample of the job queue, one counter per
// queue state.
type QueueCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// JobQueue is the read side of the queue collaborator. List methods return
// task ids extracted from job payloads, not queue-internal job ids.
type JobQueue interface {
	ListActive(ctx context.Context) ([]string, error)
	ListWaiting(ctx context.Context) ([]string, error)
	ListDelayed(ctx context.Context) ([]string, error)
	Counts(ctx context.Context) (QueueCounts, error)
}

// Enqueuer is the write side of the queue collaborator.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, taskID, ownerID, filePath string) error
}
