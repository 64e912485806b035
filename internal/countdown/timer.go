// Package countdown implements the session budget timer.
package countdown

import (
	"sync"
	"time"

	"github.com/shehryarbajwa/virtual-lab/internal/schedule"
)

// Hooks are called outside the timer's lock.
type Hooks struct {
	// OnTick runs after each decrement with the run id returned by Start.
	OnTick func(run uint64, remaining int)
	// OnExpire runs once per Start, when remaining reaches zero.
	OnExpire func(run uint64)
}

// Timer counts a budget down one second at a time. Ticks keep firing while
// the timer is suspended but only decrement while it is active.
type Timer struct {
	sched    schedule.Scheduler
	interval time.Duration
	hooks    Hooks

	mu        sync.Mutex
	gen       uint64
	remaining int
	running   bool
	active    bool
	fired     bool
	task      schedule.Task
}

// New creates a stopped timer ticking every interval.
func New(sched schedule.Scheduler, interval time.Duration, hooks Hooks) *Timer {
	return &Timer{
		sched:    sched,
		interval: interval,
		hooks:    hooks,
	}
}

// Start resets remaining to budget and begins ticking, active. The returned
// run id is passed to the hooks so callers can drop callbacks from an
// earlier run that raced with a restart.
func (t *Timer) Start(budget int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.remaining = budget
	t.running = true
	t.active = true
	t.fired = false
	t.scheduleLocked(t.gen)
	return t.gen
}

// Reset cancels ticking and sets the displayed value without starting.
func (t *Timer) Reset(budget int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.remaining = budget
}

// Cancel invalidates every pending tick. Remaining is left as is.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Suspend freezes the countdown without resetting it.
func (t *Timer) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

// Resume continues a suspended countdown.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = true
}

// Remaining is the current countdown value.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether ticks are scheduled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) stopLocked() {
	t.gen++
	t.running = false
	t.active = false
	if t.task != nil {
		t.task.Stop()
		t.task = nil
	}
}

func (t *Timer) scheduleLocked(gen uint64) {
	t.task = t.sched.AfterFunc(t.interval, func() { t.tick(gen) })
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}

	decremented := false
	expired := false
	if t.active && t.remaining > 0 {
		t.remaining--
		decremented = true
	}
	if t.remaining <= 0 && t.active && !t.fired {
		t.fired = true
		t.running = false
		t.task = nil
		expired = true
	} else {
		t.scheduleLocked(gen)
	}
	remaining := t.remaining
	t.mu.Unlock()

	if decremented && t.hooks.OnTick != nil {
		t.hooks.OnTick(gen, remaining)
	}
	if expired && t.hooks.OnExpire != nil {
		t.hooks.OnExpire(gen)
	}
}
