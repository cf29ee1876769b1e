package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/voxscribe/backend/internal/core/ports"
	"github.com/voxscribe/backend/internal/domain"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
	"github.com/voxscribe/backend/internal/infrastructure/queue"
)

type memoryRepo struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newMemoryRepo(tasks ...domain.Task) *memoryRepo {
	r := &memoryRepo{tasks: make(map[string]*domain.Task)}
	for i := range tasks {
		t := tasks[i]
		r.tasks[t.ID] = &t
	}
	return r
}

func (r *memoryRepo) Create(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ports.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memoryRepo) GetByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Task
	for _, t := range r.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateProgress(ctx context.Context, id string, status domain.TaskStatus, progress int, stage, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && !t.Status.IsTerminal() {
		t.Status = status
		t.Progress = progress
		t.Stage = stage
		t.Message = message
	}
	return nil
}

func (r *memoryRepo) MarkCompleted(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && !t.Status.IsTerminal() {
		t.Status = domain.TaskStatusCompleted
		t.Progress = 100
	}
	return nil
}

func (r *memoryRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok && !t.Status.IsTerminal() {
		t.Status = domain.TaskStatusFailed
		t.Error = errMsg
	}
	return nil
}

func (r *memoryRepo) status(id string) domain.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		return t.Status
	}
	return ""
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string // "<room>/<event>"
}

func (n *recordingNotifier) Notify(roomKey, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, roomKey+"/"+event)
}

func (n *recordingNotifier) has(room, event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == room+"/"+event {
			return true
		}
	}
	return false
}

type scriptedEngine struct {
	err error
}

func (e *scriptedEngine) Transcribe(ctx context.Context, filePath string, progress func(percent int, stage, message string)) error {
	progress(50, "transcribing", "halfway")
	return e.err
}

func pollUntil(t *testing.T, timeout time.Duration, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatal("timeout")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func startWorker(t *testing.T, repo ports.TaskRepository, notifier ports.Notifier, engine ports.Transcriber) asynq.RedisClientOpt {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(s.Close)

	redisOpt := asynq.RedisClientOpt{Addr: s.Addr()}
	w := New(redisOpt, repo, notifier, engine, Config{Queue: "transcription", Concurrency: 2}, logger.NewNop())
	go func() { _ = w.Start() }()
	t.Cleanup(w.Shutdown)
	return redisOpt
}

func TestWorkerCompletesTask(t *testing.T) {
	repo := newMemoryRepo(domain.Task{ID: "task-1", OwnerID: "u1", Status: domain.TaskStatusPending})
	notifier := &recordingNotifier{}
	redisOpt := startWorker(t, repo, notifier, &scriptedEngine{})

	enq := queue.NewEnqueuer(redisOpt, "transcription", logger.NewNop())
	defer enq.Close()
	if err := enq.EnqueueTranscription(context.Background(), "task-1", "u1", "/uploads/a.mp3"); err != nil {
		t.Fatalf("EnqueueTranscription: %v", err)
	}

	pollUntil(t, 5*time.Second, func() bool {
		return repo.status("task-1") == domain.TaskStatusCompleted
	})
	pollUntil(t, time.Second, func() bool {
		return notifier.has(domain.TaskRoom("task-1"), domain.EventTaskCompleted)
	})
	if !notifier.has(domain.TaskRoom("task-1"), domain.EventTaskProgress) {
		t.Fatal("progress events should have been fanned out")
	}
}

func TestWorkerFailsTask(t *testing.T) {
	repo := newMemoryRepo(domain.Task{ID: "task-2", OwnerID: "u1", Status: domain.TaskStatusPending})
	notifier := &recordingNotifier{}
	redisOpt := startWorker(t, repo, notifier, &scriptedEngine{err: errors.New("unsupported codec")})

	enq := queue.NewEnqueuer(redisOpt, "transcription", logger.NewNop())
	defer enq.Close()
	if err := enq.EnqueueTranscription(context.Background(), "task-2", "u1", "/uploads/b.mp3"); err != nil {
		t.Fatalf("EnqueueTranscription: %v", err)
	}

	pollUntil(t, 5*time.Second, func() bool {
		return repo.status("task-2") == domain.TaskStatusFailed
	})
	pollUntil(t, time.Second, func() bool {
		return notifier.has(domain.TaskRoom("task-2"), domain.EventTaskFailed)
	})
}
