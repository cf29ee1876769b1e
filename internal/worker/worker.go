package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/domain"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
	"github.com/voxscribe/backend/internal/infrastructure/queue"
)

// Worker consumes transcription jobs. The pipeline itself lives behind
// ports.Transcriber; the worker's job is lifecycle bookkeeping: mark the
// record PROCESSING, stream progress into the store and the gateway, and
// apply exactly one terminal update when the pipeline returns.
type Worker struct {
	server   *asynq.Server
	tasks    ports.TaskRepository
	notifier ports.Notifier
	engine   ports.Transcriber
	log      *logger.Logger
}

type Config struct {
	Queue       string
	Concurrency int
}

func New(redisOpt asynq.RedisClientOpt, tasks ports.TaskRepository, notifier ports.Notifier, engine ports.Transcriber, cfg Config, log *logger.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Queue == "" {
		cfg.Queue = "transcription"
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
	})
	return &Worker{server: server, tasks: tasks, notifier: notifier, engine: engine, log: log}
}

// Start runs the asynq server until Shutdown is called. Blocking.
func (w *Worker) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTranscription, w.handleTranscription)
	return w.server.Run(mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func (w *Worker) handleTranscription(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.UnmarshalPayload(t.Payload())
	if err != nil {
		// Malformed payloads will never succeed; do not let asynq retry them.
		w.log.Errorw("worker_bad_payload", "error", err)
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	w.log.Infow("worker_job_start", "task_id", payload.TaskID, "owner", payload.OwnerID)
	w.progress(ctx, payload, 0, "processing", "Transcription started")

	err = w.engine.Transcribe(ctx, payload.FilePath, func(percent int, stage, message string) {
		w.progress(ctx, payload, percent, stage, message)
	})
	if err != nil {
		if markErr := w.tasks.MarkFailed(ctx, payload.TaskID, err.Error()); markErr != nil {
			w.log.Errorw("worker_mark_failed_error", "task_id", payload.TaskID, "error", markErr)
		}
		w.notifier.Notify(domain.TaskRoom(payload.TaskID), domain.EventTaskFailed, map[string]string{
			"taskId": payload.TaskID,
			"error":  err.Error(),
		})
		w.log.Errorw("worker_job_failed", "task_id", payload.TaskID, "error", err)
		return err
	}

	if markErr := w.tasks.MarkCompleted(ctx, payload.TaskID); markErr != nil {
		w.log.Errorw("worker_mark_completed_error", "task_id", payload.TaskID, "error", markErr)
		return markErr
	}
	w.notifier.Notify(domain.TaskRoom(payload.TaskID), domain.EventTaskCompleted, map[string]string{
		"taskId": payload.TaskID,
	})
	w.log.Infow("worker_job_done", "task_id", payload.TaskID)
	return nil
}

func (w *Worker) progress(ctx context.Context, payload queue.TranscriptionPayload, percent int, stage, message string) {
	if err := w.tasks.UpdateProgress(ctx, payload.TaskID, domain.TaskStatusProcessing, percent, stage, message); err != nil {
		w.log.Warnw("worker_progress_update_failed", "task_id", payload.TaskID, "error", err)
	}
	w.notifier.Notify(domain.TaskRoom(payload.TaskID), domain.EventTaskProgress, domain.ProgressEvent{
		TaskID:   payload.TaskID,
		Status:   domain.TaskStatusProcessing,
		Progress: percent,
		Stage:    stage,
		Message:  message,
	})
}
