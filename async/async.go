// Package async provides the cooperative scheduling primitives the pipeline
// runs on: a single-threaded task loop with zero-delay deferred tasks and
// timers. Components never block inside the loop; anything that must happen
// "later" is posted with Defer and runs on a following loop iteration.
package async

import (
	"sync"
	"time"
)

// Deferrer schedules a callback to run once, at the next opportunity, never
// synchronously within the call that scheduled it.
type Deferrer interface {
	Defer(fn func())
}

// Loop is a cooperative, single-threaded task scheduler. Tasks are executed
// in FIFO order, one at a time, on whichever goroutine drives the loop via
// Run or RunPending. Defer is safe to call from any goroutine, which is how
// OS-level event sources (pty reads, timers) hand their callbacks over to
// the pipeline thread.
type Loop struct {
	mu      sync.Mutex
	wake    *sync.Cond
	tasks   []func()
	stopped bool
}

// NewLoop returns a new task loop.
func NewLoop() *Loop {
	l := &Loop{}
	l.wake = sync.NewCond(&l.mu)
	return l
}

// Defer schedules fn to run on a following loop iteration.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()
	l.wake.Signal()
}

// RunPending executes the tasks that were queued before the call and
// returns their number. Tasks deferred during execution stay queued for the
// next call, so a task that re-arms itself cannot starve the caller.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	pending := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// Run executes tasks until Stop is called. It blocks the calling goroutine,
// which becomes the pipeline thread.
func (l *Loop) Run() {
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.stopped {
			l.wake.Wait()
		}
		if l.stopped && len(l.tasks) == 0 {
			l.stopped = false
			l.mu.Unlock()
			return
		}
		fn := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		fn()
	}
}

// Stop makes Run return once the queue is drained.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.wake.Signal()
}

// Timer delivers a callback on the loop after a delay.
type Timer struct {
	timer *time.Timer
}

// After schedules fn to run on the loop once d has elapsed. The returned
// timer can be stopped before it fires.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		l.Defer(fn)
	})
	return t
}

// Stop cancels the timer. It reports whether the callback was stopped
// before being handed to the loop.
func (t *Timer) Stop() bool {
	return t.timer.Stop()
}
