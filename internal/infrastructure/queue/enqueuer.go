package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

type Enqueuer struct {
	client *asynq.Client
	queue  string
	log    *logger.Logger
}

func NewEnqueuer(redisOpt asynq.RedisClientOpt, queueName string, log *logger.Logger) *Enqueuer {
	return &Enqueuer{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
		log:    log,
	}
}

func (e *Enqueuer) EnqueueTranscription(ctx context.Context, taskID, ownerID, filePath string) error {
	payload, err := marshalPayload(TranscriptionPayload{
		TaskID:   taskID,
		OwnerID:  ownerID,
		FilePath: filePath,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	task := asynq.NewTask(TypeTranscription, payload)
	info, err := e.client.EnqueueContext(ctx, task, asynq.Queue(e.queue), asynq.MaxRetry(3))
	if err != nil {
		e.log.Errorw("queue_enqueue_failed", "task_id", taskID, "error", err)
		return err
	}
	e.log.Infow("queue_enqueue_ok", "task_id", taskID, "job_id", info.ID, "queue", info.Queue)
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
