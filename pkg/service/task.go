package service

import (
	"context"
	"time"
)

// TaskFunc is a background loop. It must return once ctx is done.
type TaskFunc func(ctx context.Context)

// Task is a running TaskFunc paired with its cancellation.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Spawn starts fn on a new goroutine.
func Spawn(fn TaskFunc) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		fn(ctx)
	}()
	return t
}

// Done is closed once the task function has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Abort cancels the task and waits for it to return.
// A non-positive timeout waits indefinitely, otherwise ErrTaskTimeout is returned when the wait expires.
func (t *Task) Abort(timeout time.Duration) error {
	t.cancel()
	return wait(t.done, timeout)
}

// wait blocks until done is closed. A non-positive timeout waits indefinitely,
// otherwise ErrTaskTimeout is returned when the wait expires.
func wait(done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrTaskTimeout
	}
}
