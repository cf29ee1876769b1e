package services

import (
	"context"
	"time"

	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

// QueueStats is the reporter output: raw counters plus a derived health
// flag computed from a static threshold on the failed count.
type QueueStats struct {
	ports.QueueCounts
	Healthy bool `json:"healthy"`
}

// StatsService periodically samples queue counts for operational
// visibility. It is stateless; a failed sample is logged and skipped.
type StatsService struct {
	queue           ports.JobQueue
	log             *logger.Logger
	failedThreshold int
}

func NewStatsService(queue ports.JobQueue, failedThreshold int, log *logger.Logger) *StatsService {
	if failedThreshold <= 0 {
		failedThreshold = 100
	}
	return &StatsService{queue: queue, log: log, failedThreshold: failedThreshold}
}

// Snapshot samples the queue once. The boundary is exclusive: failed counts
// equal to the threshold already flip healthy to false.
func (s *StatsService) Snapshot(ctx context.Context) (QueueStats, error) {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		QueueCounts: counts,
		Healthy:     counts.Failed < s.failedThreshold,
	}, nil
}

// Run samples on a fixed interval until the context ends.
func (s *StatsService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Snapshot(ctx)
			if err != nil {
				s.log.Warnw("queue_stats_sample_failed", "error", err)
				continue
			}
			s.log.Infow("queue_stats",
				"waiting", stats.Waiting,
				"active", stats.Active,
				"completed", stats.Completed,
				"failed", stats.Failed,
				"delayed", stats.Delayed,
				"healthy", stats.Healthy,
			)
		}
	}
}
