package services

import (
	"context"
	"errors"
	"testing"

	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

func TestStatsHealthyBelowThreshold(t *testing.T) {
	queue := &fakeQueue{counts: ports.QueueCounts{Waiting: 3, Active: 2, Failed: 99}}
	s := NewStatsService(queue, 100, logger.NewNop())

	stats, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !stats.Healthy {
		t.Fatal("failed=99 under threshold 100 must be healthy")
	}
	if stats.Waiting != 3 || stats.Active != 2 {
		t.Fatalf("counts not passed through: %+v", stats)
	}
}

func TestStatsUnhealthyAtThreshold(t *testing.T) {
	// Boundary is exclusive: reaching the threshold flips health.
	queue := &fakeQueue{counts: ports.QueueCounts{Failed: 100}}
	s := NewStatsService(queue, 100, logger.NewNop())

	stats, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if stats.Healthy {
		t.Fatal("failed=100 at threshold 100 must be unhealthy")
	}
}

func TestStatsSnapshotError(t *testing.T) {
	queue := &fakeQueue{countsErr: errors.New("redis unavailable")}
	s := NewStatsService(queue, 100, logger.NewNop())

	if _, err := s.Snapshot(context.Background()); err == nil {
		t.Fatal("want error from failed sample")
	}
}
