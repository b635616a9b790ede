package drive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tigerbot-team/pigpen/pkg/monitoring"
	"github.com/tigerbot-team/pigpen/pkg/pid"
)

var (
	ErrCancelled = errors.New("motion cancelled by a newer command")
	ErrTimeout   = errors.New("motion timed out")
)

// Task is a handle on one move or turn.
type Task struct {
	ID   string
	Kind string

	cancel context.CancelFunc
	done   chan struct{}

	// Written before done is closed.
	err   error
	gains pid.Gains
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx expires.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns nil until the task has finished.
func (t *Task) Err() error {
	if !t.Finished() {
		return nil
	}
	return t.err
}

// Completed reports whether the task reached its target.
func (t *Task) Completed() bool {
	return t.Finished() && t.err == nil
}

// Gains returns the PID gains the motion ran with.  Only valid once the task
// has finished.
func (t *Task) Gains() pid.Gains {
	<-t.done
	return t.gains
}

// slot runs one kind of motion at a time.  Starting a new motion cancels the
// one in flight and waits for its cleanup before the new one begins.
type slot struct {
	kind string

	lock     sync.Mutex
	current  *Task
	complete atomic.Bool
}

type motion func(ctx context.Context, t *Task) error

func (s *slot) start(timeout time.Duration, async bool, body motion) *Task {
	s.lock.Lock()
	if prev := s.current; prev != nil && !prev.Finished() {
		monitoring.Logf("Drive: %s %s preempted", s.kind, prev.ID)
		prev.cancel()
		<-prev.done
	}
	s.complete.Store(false)

	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	t := &Task{
		ID:     uuid.NewString(),
		Kind:   s.kind,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = t
	s.lock.Unlock()

	if async {
		go s.run(ctx, t, body)
	} else {
		s.run(ctx, t, body)
	}
	return t
}

func (s *slot) run(ctx context.Context, t *Task, body motion) {
	defer close(t.done)
	defer t.cancel()

	startTime := time.Now()
	err := body(ctx, t)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = ErrTimeout
	case errors.Is(err, context.Canceled):
		err = ErrCancelled
	}
	t.err = err
	if err == nil {
		s.complete.Store(true)
	}
	monitoring.Logf("Drive: %s %s finished after %v: %v", s.kind, t.ID, time.Since(startTime), err)
}

// cancel stops the motion in flight, if any, and waits for it to clean up.
func (s *slot) cancel() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.current != nil {
		s.current.cancel()
		<-s.current.done
	}
}

func (s *slot) wait(ctx context.Context) error {
	s.lock.Lock()
	t := s.current
	s.lock.Unlock()
	if t == nil {
		return nil
	}
	return t.Wait(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
