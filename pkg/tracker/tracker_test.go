package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSubscriber struct {
	events       chan PushEvent
	unsubscribed atomic.Int32
	err          error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{events: make(chan PushEvent, 16)}
}

func (f *fakeSubscriber) Subscribe(taskID string) (<-chan PushEvent, func(), error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.events, func() { f.unsubscribed.Add(1) }, nil
}

type fakePoller struct {
	mu    sync.Mutex
	snaps []TaskSnapshot
	errs  []error
	calls int
}

func (f *fakePoller) Poll(ctx context.Context, taskID string) (TaskSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return TaskSnapshot{}, f.errs[i]
	}
	if len(f.snaps) == 0 {
		return TaskSnapshot{TaskID: taskID, Status: StatusProcessing}, nil
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i], nil
}

type counters struct {
	mu        sync.Mutex
	progress  []int
	completes int32
	errored   int32
	lastErr   string
}

func (c *counters) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(percent int, stage, message string) {
			c.mu.Lock()
			c.progress = append(c.progress, percent)
			c.mu.Unlock()
		},
		OnComplete: func() { atomic.AddInt32(&c.completes, 1) },
		OnError: func(errMsg string) {
			atomic.AddInt32(&c.errored, 1)
			c.mu.Lock()
			c.lastErr = errMsg
			c.mu.Unlock()
		},
	}
}

func (c *counters) progressValues() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.progress))
	copy(out, c.progress)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTerminalTransitionExactlyOnce(t *testing.T) {
	sub := newFakeSubscriber()
	poller := &fakePoller{snaps: []TaskSnapshot{{TaskID: "t1", Status: StatusCompleted}}}
	c := &counters{}

	tr := New(Config{
		TaskID:       "t1",
		Subscriber:   sub,
		Poller:       poller,
		Callbacks:    c.callbacks(),
		PollGrace:    time.Millisecond,
		PollInterval: time.Millisecond,
	})
	tr.Start()

	// Push and poll race toward the same terminal outcome.
	sub.events <- PushEvent{Name: EventTaskCompleted, TaskID: "t1"}

	waitFor(t, func() bool { return atomic.LoadInt32(&c.completes) >= 1 })
	time.Sleep(50 * time.Millisecond)

	if n := atomic.LoadInt32(&c.completes); n != 1 {
		t.Fatalf("completion callback fired %d times, want exactly 1", n)
	}
	if atomic.LoadInt32(&c.errored) != 0 {
		t.Fatal("error callback must not fire on completion")
	}
	if sub.unsubscribed.Load() != 1 {
		t.Fatalf("unsubscribe called %d times, want 1", sub.unsubscribed.Load())
	}
}

func TestProgressMonotonicWithTerminalJump(t *testing.T) {
	sub := newFakeSubscriber()
	c := &counters{}

	tr := New(Config{
		TaskID:     "t1",
		Subscriber: sub,
		Callbacks:  c.callbacks(),
	})
	tr.Start()

	for _, p := range []int{10, 40, 25} {
		sub.events <- PushEvent{Name: EventTaskProgress, TaskID: "t1", Progress: p}
	}
	sub.events <- PushEvent{Name: EventTaskCompleted, TaskID: "t1"}

	waitFor(t, func() bool { return atomic.LoadInt32(&c.completes) == 1 })

	values := c.progressValues()
	// 10 and 40 map into the processing band; the out-of-order 25 is
	// dropped in favor of the prior high-water mark, then the terminal
	// event jumps to 100.
	want := []int{36, 56, 100}
	if len(values) != len(want) {
		t.Fatalf("progress values %v, want %v", values, want)
	}
	for i := range want {
		if values[i] != want[i] {
			t.Fatalf("progress values %v, want %v", values, want)
		}
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("rendered progress regressed: %v", values)
		}
	}
}

func TestPollFailureRetriedNextTick(t *testing.T) {
	poller := &fakePoller{
		errs:  []error{errors.New("timeout"), errors.New("timeout")},
		snaps: []TaskSnapshot{{}, {}, {TaskID: "t1", Status: StatusCompleted}},
	}
	c := &counters{}

	tr := New(Config{
		TaskID:       "t1",
		Poller:       poller,
		Callbacks:    c.callbacks(),
		PollGrace:    time.Millisecond,
		PollInterval: time.Millisecond,
	})
	tr.Start()

	waitFor(t, func() bool { return atomic.LoadInt32(&c.completes) == 1 })
	if atomic.LoadInt32(&c.errored) != 0 {
		t.Fatal("transient poll failures must stay invisible")
	}
}

func TestPushFailureFiresErrorOnce(t *testing.T) {
	sub := newFakeSubscriber()
	c := &counters{}

	tr := New(Config{
		TaskID:     "t1",
		Subscriber: sub,
		Callbacks:  c.callbacks(),
	})
	tr.Start()

	sub.events <- PushEvent{Name: EventTaskFailed, TaskID: "t1", Error: "decode error"}
	sub.events <- PushEvent{Name: EventTaskFailed, TaskID: "t1", Error: "decode error"}

	waitFor(t, func() bool { return atomic.LoadInt32(&c.errored) >= 1 })
	time.Sleep(50 * time.Millisecond)

	if n := atomic.LoadInt32(&c.errored); n != 1 {
		t.Fatalf("error callback fired %d times, want exactly 1", n)
	}
	c.mu.Lock()
	lastErr := c.lastErr
	c.mu.Unlock()
	if lastErr != "decode error" {
		t.Fatalf("error message = %q", lastErr)
	}
}

func TestForeignTaskEventsIgnored(t *testing.T) {
	sub := newFakeSubscriber()
	c := &counters{}

	tr := New(Config{
		TaskID:     "t1",
		Subscriber: sub,
		Callbacks:  c.callbacks(),
	})
	tr.Start()

	sub.events <- PushEvent{Name: EventTaskCompleted, TaskID: "other"}
	sub.events <- PushEvent{Name: EventTaskProgress, TaskID: "other", Progress: 90}
	sub.events <- PushEvent{Name: EventTaskCompleted, TaskID: "t1"}

	waitFor(t, func() bool { return atomic.LoadInt32(&c.completes) == 1 })

	values := c.progressValues()
	if len(values) != 1 || values[0] != 100 {
		t.Fatalf("foreign events leaked into progress: %v", values)
	}
}

func TestStopFiresNoCallbacks(t *testing.T) {
	sub := newFakeSubscriber()
	poller := &fakePoller{snaps: []TaskSnapshot{{TaskID: "t1", Status: StatusCompleted}}}
	c := &counters{}

	tr := New(Config{
		TaskID:       "t1",
		Subscriber:   sub,
		Poller:       poller,
		Callbacks:    c.callbacks(),
		PollGrace:    20 * time.Millisecond,
		PollInterval: time.Millisecond,
	})
	tr.Start()
	tr.Stop()

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&c.completes) != 0 || atomic.LoadInt32(&c.errored) != 0 {
		t.Fatal("cancelled tracker must not fire terminal callbacks")
	}
	if sub.unsubscribed.Load() != 1 {
		t.Fatal("Stop must run the shared cleanup path")
	}
}

func TestSubscribeFailureFallsBackToPolling(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = errors.New("gateway unavailable")
	poller := &fakePoller{snaps: []TaskSnapshot{{TaskID: "t1", Status: StatusCompleted}}}
	c := &counters{}

	tr := New(Config{
		TaskID:       "t1",
		Subscriber:   sub,
		Poller:       poller,
		Callbacks:    c.callbacks(),
		PollGrace:    time.Millisecond,
		PollInterval: time.Millisecond,
	})
	tr.Start()

	waitFor(t, func() bool { return atomic.LoadInt32(&c.completes) == 1 })
}
