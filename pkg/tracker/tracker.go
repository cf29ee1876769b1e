// Package tracker follows one in-flight transcription task to a single
// terminal outcome. It listens for push notifications and independently
// polls the task record as a fallback, so progress keeps flowing even when
// the notification gateway is completely unavailable. Whichever channel
// reports completion first wins; the other is ignored.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task status values as stored in the task record.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Push event names as delivered by the notification gateway.
const (
	EventTaskProgress  = "task_progress"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
)

// PushEvent is one notification received over the push channel.
type PushEvent struct {
	Name     string
	TaskID   string
	Progress int
	Stage    string
	Message  string
	Error    string
}

// Subscriber is the push channel. Subscribe returns a stream of events for
// the task's room and a function that leaves the room and closes the
// stream. A failed subscribe is not fatal to the tracker.
type Subscriber interface {
	Subscribe(taskID string) (<-chan PushEvent, func(), error)
}

// TaskSnapshot is the poll channel's view of the task record.
type TaskSnapshot struct {
	TaskID   string
	Status   string
	Progress int
	Stage    string
	Message  string
	Error    string
}

// StatusPoller reads the authoritative task record.
type StatusPoller interface {
	Poll(ctx context.Context, taskID string) (TaskSnapshot, error)
}

type Callbacks struct {
	// OnProgress receives the mapped overall percentage, already clamped to
	// the high-water mark.
	OnProgress func(percent int, stage, message string)
	OnComplete func()
	OnError    func(errMsg string)
}

type Config struct {
	TaskID     string
	Subscriber Subscriber // optional; nil means poll-only
	Poller     StatusPoller
	Callbacks  Callbacks

	// PollGrace delays the first poll so the push channel gets first chance;
	// in the common case polling never observes anything interesting.
	PollGrace    time.Duration
	PollInterval time.Duration
}

// The overall progress bar reserves [0, processingFloor) for the upload
// itself; processing progress 0-100 is mapped into
// [processingFloor, processingCeil] and the terminal event jumps to 100.
// Both channels report on different native scales; the mapping keeps the
// bar moving consistently regardless of which one is feeding it.
const (
	processingFloor = 30
	processingCeil  = 95
)

type Tracker struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	// done is the terminal-transition claim. Every terminal path does a
	// compare-and-swap on it before acting, which is what guarantees the
	// completion callback fires exactly once even if push and poll race.
	done atomic.Bool

	mu          sync.Mutex
	displayed   int // high-water mark of the mapped percentage
	unsubscribe func()
}

func New(cfg Config) *Tracker {
	if cfg.PollGrace <= 0 {
		cfg.PollGrace = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Start wires up both channels and returns immediately.
func (t *Tracker) Start() {
	if t.cfg.Subscriber != nil {
		events, unsubscribe, err := t.cfg.Subscriber.Subscribe(t.cfg.TaskID)
		if err == nil {
			t.mu.Lock()
			t.unsubscribe = unsubscribe
			t.mu.Unlock()
			go t.consumePush(events)
		}
		// On error: nothing to do, polling carries the tracker alone.
	}
	if t.cfg.Poller != nil {
		go t.pollLoop()
	}
}

// Stop cancels tracking without firing any callback. It claims the
// terminal flag so a late push or poll result cannot fire one either, and
// runs the same cleanup path as a normal terminal transition.
func (t *Tracker) Stop() {
	t.done.Store(true)
	t.cleanup()
}

func (t *Tracker) consumePush(events <-chan PushEvent) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.TaskID != t.cfg.TaskID {
				continue
			}
			switch ev.Name {
			case EventTaskProgress:
				t.handleProgress(ev.Progress, ev.Stage, ev.Message)
			case EventTaskCompleted:
				t.complete()
			case EventTaskFailed:
				t.fail(ev.Error)
			}
		}
	}
}

func (t *Tracker) pollLoop() {
	grace := time.NewTimer(t.cfg.PollGrace)
	defer grace.Stop()
	select {
	case <-t.ctx.Done():
		return
	case <-grace.C:
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		t.pollOnce()
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Tracker) pollOnce() {
	snap, err := t.cfg.Poller.Poll(t.ctx, t.cfg.TaskID)
	if err != nil {
		// Transient poll failures are invisible; the next tick retries.
		return
	}
	switch snap.Status {
	case StatusCompleted:
		t.complete()
	case StatusFailed:
		t.fail(snap.Error)
	case StatusProcessing:
		t.handleProgress(snap.Progress, snap.Stage, snap.Message)
	}
}

// handleProgress maps a native 0-100 processing percentage into the
// processing band and applies it only if it advances the high-water mark.
// Out-of-order values are dropped, never rendered as a regression.
func (t *Tracker) handleProgress(percent int, stage, message string) {
	if t.done.Load() {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	mapped := processingFloor + percent*(processingCeil-processingFloor)/100

	t.mu.Lock()
	if mapped <= t.displayed {
		t.mu.Unlock()
		return
	}
	t.displayed = mapped
	t.mu.Unlock()

	if t.cfg.Callbacks.OnProgress != nil {
		t.cfg.Callbacks.OnProgress(mapped, stage, message)
	}
}

func (t *Tracker) complete() {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	t.cleanup()
	t.mu.Lock()
	t.displayed = 100
	t.mu.Unlock()
	if t.cfg.Callbacks.OnProgress != nil {
		t.cfg.Callbacks.OnProgress(100, "done", "")
	}
	if t.cfg.Callbacks.OnComplete != nil {
		t.cfg.Callbacks.OnComplete()
	}
}

func (t *Tracker) fail(errMsg string) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	t.cleanup()
	if t.cfg.Callbacks.OnError != nil {
		t.cfg.Callbacks.OnError(errMsg)
	}
}

// cleanup is shared by terminal transitions and explicit cancellation:
// stop the poll loop, drop the push subscription, release timers.
func (t *Tracker) cleanup() {
	t.cancel()
	t.mu.Lock()
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
