package queue

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

const listPageSize = 500

// inspector is the read side of the queue collaborator, backed by
// asynq.Inspector. Waiting maps to asynq's pending set; delayed is the
// union of scheduled and retry, both of which hold jobs that will run but
// are not running now.
type inspector struct {
	inner *asynq.Inspector
	queue string
	log   *logger.Logger
}

func NewInspector(redisOpt asynq.RedisClientOpt, queueName string, log *logger.Logger) ports.JobQueue {
	return &inspector{
		inner: asynq.NewInspector(redisOpt),
		queue: queueName,
		log:   log,
	}
}

func (i *inspector) ListActive(ctx context.Context) ([]string, error) {
	return i.listTaskIDs(i.inner.ListActiveTasks)
}

func (i *inspector) ListWaiting(ctx context.Context) ([]string, error) {
	return i.listTaskIDs(i.inner.ListPendingTasks)
}

func (i *inspector) ListDelayed(ctx context.Context) ([]string, error) {
	scheduled, err := i.listTaskIDs(i.inner.ListScheduledTasks)
	if err != nil {
		return nil, err
	}
	retry, err := i.listTaskIDs(i.inner.ListRetryTasks)
	if err != nil {
		return nil, err
	}
	return append(scheduled, retry...), nil
}

func (i *inspector) Counts(ctx context.Context) (ports.QueueCounts, error) {
	info, err := i.inner.GetQueueInfo(i.queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return ports.QueueCounts{}, nil
		}
		return ports.QueueCounts{}, err
	}
	return ports.QueueCounts{
		Waiting:   info.Pending,
		Active:    info.Active,
		Completed: info.Completed,
		// Archived is asynq's dead set: tasks that exhausted their retries.
		Failed:  info.Archived,
		Delayed: info.Scheduled + info.Retry,
	}, nil
}

// listTaskIDs walks every page of the given list call. A short page marks
// the end; stopping after the first page would drop queue entries past the
// page size and misclassify their tasks during reconciliation.
func (i *inspector) listTaskIDs(list func(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)) ([]string, error) {
	var ids []string
	for page := 1; ; page++ {
		infos, err := list(i.queue, asynq.PageSize(listPageSize), asynq.Page(page))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				return ids, nil
			}
			return nil, err
		}
		for _, info := range infos {
			p, err := unmarshalPayload(info.Payload)
			if err != nil {
				i.log.Warnw("queue_payload_decode_failed", "job_id", info.ID, "error", err)
				continue
			}
			ids = append(ids, p.TaskID)
		}
		if len(infos) < listPageSize {
			return ids, nil
		}
	}
}
