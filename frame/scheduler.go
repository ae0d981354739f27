// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame runs cooperative tasks at fixed points of a frame.
//
// A task is a function that suspends itself with Task.Await and is resumed
// by the scheduler when the host runs the awaited timing. Tasks are
// coroutines built on iter.Pull: they run on the goroutine that calls
// Scheduler.Run, one at a time, so a task may use the current graphics
// context without further synchronization.
//
//	s := frame.NewScheduler()
//	s.Start(ctx, frame.EarlyUpdate, "spin", func(t *frame.Task) error {
//		for t.Await(frame.Update) {
//			angle += 0.01
//		}
//		return nil
//	})
//	for _, timing := range frame.Timings(first) {
//		s.Run(timing)
//	}
package frame

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/gogpu/lumen/internal/logging"
)

// Scheduler owns a set of tasks and resumes them by timing. A Scheduler is
// not safe for concurrent use; all methods must be called from the host
// goroutine.
type Scheduler struct {
	tasks   []*Task
	running *Task
	stopped bool
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Task is a coroutine started by a Scheduler.
type Task struct {
	s      *Scheduler
	name   string
	ctx    context.Context
	cancel context.CancelFunc

	next  func() (Timing, bool)
	stop  func()
	yield func(Timing) bool

	waiting  Timing
	finished bool
	done     chan struct{}
	err      error
}

// Start registers fn as a task first resumed when timing runs. The task's
// context is derived from ctx; cancelling either ends the task at the next
// Run. Start may be called from inside another task. On a stopped scheduler
// fn runs once before Start returns, with every Await returning false.
func (s *Scheduler) Start(ctx context.Context, timing Timing, name string, fn func(t *Task) error) *Task {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task{
		s:       s,
		name:    name,
		ctx:     tctx,
		cancel:  cancel,
		waiting: timing,
		done:    make(chan struct{}),
	}
	t.next, t.stop = iter.Pull(t.body(fn))
	if s.stopped {
		s.end(t)
		return t
	}
	s.tasks = append(s.tasks, t)
	logging.Logger().Debug("frame: task started", "task", name, "timing", timing)
	return t
}

// body adapts fn to an iterator that yields the timings it awaits.
func (t *Task) body(fn func(t *Task) error) iter.Seq[Timing] {
	return func(yield func(Timing) bool) {
		t.yield = yield
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("frame: task %q panicked: %v", t.name, r)
			}
		}()
		t.err = fn(t)
	}
}

// Run resumes, in start order, every task waiting for timing. Tasks whose
// context is done are ended first: their pending Await returns false and
// their body runs to completion inside Run.
func (s *Scheduler) Run(timing Timing) {
	if s.stopped {
		return
	}
	for _, t := range slices.Clone(s.tasks) {
		if s.stopped {
			break
		}
		if t.finished {
			continue
		}
		if t.ctx.Err() != nil {
			s.end(t)
			continue
		}
		if t.waiting != timing {
			continue
		}
		s.resume(t)
	}
	s.tasks = slices.DeleteFunc(s.tasks, func(t *Task) bool { return t.finished })
}

func (s *Scheduler) resume(t *Task) {
	prev := s.running
	s.running = t
	next, ok := t.next()
	s.running = prev
	if !ok {
		t.finish()
		return
	}
	t.waiting = next
}

// end finishes a task whose context is done. A suspended task sees its
// pending Await return false; a task that never ran runs with every Await
// returning false. Either way its body completes before end returns.
func (s *Scheduler) end(t *Task) {
	t.cancel()
	if t.yield == nil {
		s.resume(t)
		if t.finished {
			return
		}
	}
	prev := s.running
	s.running = t
	t.stop()
	s.running = prev
	t.finish()
}

func (t *Task) finish() {
	if t.finished {
		return
	}
	t.finished = true
	t.cancel()
	close(t.done)
	if t.err != nil {
		logging.Logger().Warn("frame: task failed", "task", t.name, "err", t.err)
		return
	}
	logging.Logger().Debug("frame: task finished", "task", t.name)
}

// Stop ends every task synchronously and rejects further work. Calling
// Stop again does nothing.
func (s *Scheduler) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	for _, t := range s.tasks {
		// A task stopping its own scheduler finishes when its body returns.
		if !t.finished && t != s.running {
			s.end(t)
		}
	}
	s.tasks = slices.DeleteFunc(s.tasks, func(t *Task) bool { return t.finished })
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool { return s.stopped }

// Len returns the number of live tasks.
func (s *Scheduler) Len() int {
	n := 0
	for _, t := range s.tasks {
		if !t.finished {
			n++
		}
	}
	return n
}

// Await suspends the task until the scheduler runs timing. It returns true
// when resumed, and false without suspending when the task context is done
// or the scheduler stopped. It also returns false when the task is ended
// while suspended; the task should then return.
//
// Await must only be called from the task's own body.
func (t *Task) Await(timing Timing) bool {
	if t.s.running != t {
		panic(fmt.Sprintf("frame: Await called outside task %q", t.name))
	}
	if t.ctx.Err() != nil || t.s.stopped {
		return false
	}
	if !t.yield(timing) {
		return false
	}
	return t.ctx.Err() == nil
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Context returns the task context.
func (t *Task) Context() context.Context { return t.ctx }

// Cancel ends the task at the next Run of its scheduler.
func (t *Task) Cancel() { t.cancel() }

// Waiting returns the timing the task is suspended on.
func (t *Task) Waiting() Timing { return t.waiting }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Finished reports whether the task has finished.
func (t *Task) Finished() bool { return t.finished }

// Err returns the error the task body returned, once finished.
func (t *Task) Err() error {
	if !t.finished {
		return nil
	}
	return t.err
}
