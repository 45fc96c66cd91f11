// Package statscache implements the periodically refreshed aggregate
// snapshot and the structured-concurrency task supervisor that
// shutdown drives: fire cancellation, close the tracker to new tasks,
// await everything tracked.
package statscache

import (
	"context"
	"sync"
)

// TaskSupervisor owns a single cancellation signal and a join set of
// background tasks spawned against it. Shutdown is idempotent: a
// second call observes the tracker already closed and returns
// immediately.
type TaskSupervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTaskSupervisor constructs a supervisor rooted at parent.
func NewTaskSupervisor(parent context.Context) *TaskSupervisor {
	ctx, cancel := context.WithCancel(parent)
	return &TaskSupervisor{ctx: ctx, cancel: cancel}
}

// Context is the cancellation-bearing context every tracked task must
// race its work against, biased to cancellation.
func (s *TaskSupervisor) Context() context.Context { return s.ctx }

// Go spawns fn as a tracked task. Calls after Shutdown are no-ops: the
// tracker is closed to new tasks exactly once shutdown starts.
func (s *TaskSupervisor) Go(fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Shutdown fires the cancellation signal, closes the tracker to new
// tasks, and awaits every tracked task, bounded by ctx. Idempotent.
func (s *TaskSupervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
