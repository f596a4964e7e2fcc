// Package dispatch provides a single-goroutine task queue locked to one OS
// thread. It is the dispatch thread an executor binds its environment to.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrStopped is returned when submitting to a thread after Quit.
	ErrStopped = errors.New("dispatch: thread stopped")

	// ErrPanicked wraps a panic recovered from a RunOnQueueSync task.
	ErrPanicked = errors.New("dispatch: task panicked")
)

// Thread runs submitted tasks one at a time, in submission order, on a
// dedicated goroutine locked to its OS thread. Submission methods are safe
// from any goroutine.
type Thread struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
	gid  atomic.Uint64
}

// NewThread starts a thread. logger may be nil.
func NewThread(name string, logger *zap.Logger) *Thread {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Thread{
		name:   name,
		logger: logger.With(zap.String("thread", name)),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	started := make(chan struct{})
	go t.loop(started)
	<-started
	return t
}

// Name returns the name given to NewThread.
func (t *Thread) Name() string { return t.name }

func (t *Thread) loop(started chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	t.gid.Store(goroutineID())
	close(started)
	defer close(t.done)

	for {
		t.mu.Lock()
		batch := t.queue
		t.queue = nil
		stopped := t.stopped
		t.mu.Unlock()

		if len(batch) == 0 {
			if stopped {
				return
			}
			<-t.wake
			continue
		}
		for _, task := range batch {
			t.run(task)
		}
	}
}

func (t *Thread) run(task func()) {
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("task panicked", zap.Any("panic", p), zap.Stack("stack"))
		}
	}()
	task()
}

// RunOnQueue enqueues task and returns without waiting for it.
func (t *Thread) RunOnQueue(task func()) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	t.queue = append(t.queue, task)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// RunOnQueueSync runs task on the thread and waits for it to finish. Called
// from the thread itself, it runs task inline. A panic in task is returned
// as an error wrapping ErrPanicked.
func (t *Thread) RunOnQueueSync(task func()) error {
	if t.IsOnThread() {
		return t.catch(task)
	}
	var taskErr error
	finished := make(chan struct{})
	err := t.RunOnQueue(func() {
		defer close(finished)
		taskErr = t.catch(task)
	})
	if err != nil {
		return err
	}
	<-finished
	return taskErr
}

func (t *Thread) catch(task func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, p)
		}
	}()
	task()
	return nil
}

// IsOnThread reports whether the caller is running on this thread.
func (t *Thread) IsOnThread() bool {
	return goroutineID() == t.gid.Load()
}

// Quit stops accepting tasks, lets queued tasks finish and waits for the
// thread to exit or ctx to end. Called from the thread itself it does not
// wait.
func (t *Thread) Quit(ctx context.Context) error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}

	if t.IsOnThread() {
		return nil
	}
	select {
	case <-t.done:
		t.logger.Debug("thread stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the thread has exited.
func (t *Thread) Done() <-chan struct{} { return t.done }

// goroutineID returns the current goroutine's ID.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
