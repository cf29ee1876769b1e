package services

import (
	"context"
	"time"

	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/domain"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

// Reconciler cross-references the durable task records against the job
// queue at startup. The gateway and the queue are both rebuilt empty after
// a restart, so a record left in PROCESSING may have nothing behind it;
// this pass tells apart tasks that are merely queued again from tasks that
// are genuinely orphaned.
//
// It is a best-effort recovery aid: it never mutates task records and never
// lets its own failure propagate into process startup.
type Reconciler struct {
	queue    ports.JobQueue
	tasks    ports.TaskRepository
	notifier ports.Notifier
	log      *logger.Logger
}

type ReconcileSummary struct {
	StaleCount     int
	RecoveredCount int
}

func NewReconciler(queue ports.JobQueue, tasks ports.TaskRepository, notifier ports.Notifier, log *logger.Logger) *Reconciler {
	return &Reconciler{queue: queue, tasks: tasks, notifier: notifier, log: log}
}

// Run executes one reconciliation pass. Errors from either collaborator
// abort the pass cleanly; the zero summary is returned in that case.
func (r *Reconciler) Run(ctx context.Context) ReconcileSummary {
	var summary ReconcileSummary

	active, err := r.queue.ListActive(ctx)
	if err != nil {
		r.log.Errorw("reconcile_list_active_failed", "error", err)
		return summary
	}
	activeSet := make(map[string]struct{}, len(active))
	for _, id := range active {
		activeSet[id] = struct{}{}
	}

	processing, err := r.tasks.GetByStatus(ctx, domain.TaskStatusProcessing)
	if err != nil {
		r.log.Errorw("reconcile_query_processing_failed", "error", err)
		return summary
	}

	var orphans []domain.Task
	for _, task := range processing {
		if _, ok := activeSet[task.ID]; !ok {
			orphans = append(orphans, task)
		}
	}
	if len(orphans) == 0 {
		r.log.Infow("reconcile_ok", "processing", len(processing), "stale", 0, "recovered", 0)
		return summary
	}

	// Only fetched when there is something to classify; waiting and delayed
	// entries both mean the job will run again without intervention.
	queuedSet, err := r.queuedTaskIDs(ctx)
	if err != nil {
		r.log.Errorw("reconcile_list_queued_failed", "error", err)
		return summary
	}

	for _, task := range orphans {
		if _, ok := queuedSet[task.ID]; ok {
			r.notifier.Notify(domain.TaskRoom(task.ID), domain.EventTaskProgress, domain.ProgressEvent{
				TaskID:   task.ID,
				Status:   domain.TaskStatusProcessing,
				Progress: 5,
				Stage:    "processing",
				Message:  "Your transcription is queued and will resume shortly",
			})
			summary.RecoveredCount++
			r.log.Infow("reconcile_pending_recovery", "task_id", task.ID, "owner", task.OwnerID)
			continue
		}

		// No queue trace at all. Deliberately no auto-fail and no re-enqueue:
		// either guess risks double-processing or silently losing work, so
		// the call belongs to an operator.
		summary.StaleCount++
		r.log.Warnw("reconcile_stale_task", "task_id", task.ID, "owner", task.OwnerID,
			"hint", "PROCESSING with no queue entry; needs manual investigation")
	}

	r.log.Infow("reconcile_ok",
		"processing", len(processing),
		"stale", summary.StaleCount,
		"recovered", summary.RecoveredCount,
	)
	return summary
}

// RunEvery re-runs the pass on a fixed interval until the context ends.
func (r *Reconciler) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Run(ctx)
		}
	}
}

func (r *Reconciler) queuedTaskIDs(ctx context.Context) (map[string]struct{}, error) {
	waiting, err := r.queue.ListWaiting(ctx)
	if err != nil {
		return nil, err
	}
	delayed, err := r.queue.ListDelayed(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(waiting)+len(delayed))
	for _, id := range waiting {
		set[id] = struct{}{}
	}
	for _, id := range delayed {
		set[id] = struct{}{}
	}
	return set, nil
}
