// Package countdown implements a countdown timer with start/pause/resume/stop
// controls, an optional deferred begin time, a periodic "continue" mode and a
// lifecycle event stream.
//
// Out-of-order calls (pausing an idle timer, resuming a running one, stopping a
// stopped one) are silent no-ops. Events are delivered synchronously in call
// order, and handlers may call back into the timer.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/mescon/tickr/internal/clock"
	"github.com/mescon/tickr/internal/logger"
)

// Timer is a countdown timer. It is safe for concurrent use.
type Timer struct {
	mu      sync.Mutex
	machine machine
	rt      runtime
	events  emitter
}

// Snapshot is a consistent view of a timer at one instant.
type Snapshot struct {
	State     State
	Remaining time.Duration
	Counting  bool
	Paused    bool
	Stopped   bool
}

// New creates an idle timer that counts down d per cycle.
func New(d time.Duration, opts Options) (*Timer, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDuration, d)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	t := &Timer{}
	t.machine = machine{
		duration:  d,
		cont:      opts.Continue,
		beginTime: opts.BeginTime,
		clk:       clk,
		fire:      t.fire,
	}
	return t, nil
}

// Duration returns the configured cycle length.
func (t *Timer) Duration() time.Duration { return t.machine.duration }

// Continue reports whether the timer restarts after every tick.
func (t *Timer) Continue() bool { return t.machine.cont }

// BeginTime returns the deferred start instant, or the zero time.
func (t *Timer) BeginTime() time.Time { return t.machine.beginTime }

// Start begins counting, or arms the timer when a begin time is configured.
func (t *Timer) Start() {
	t.apply("start", t.machine.start)
}

// Pause freezes a running cycle and keeps the leftover time for Resume.
// Pausing while waiting for the begin time disarms the timer without an event.
func (t *Timer) Pause() {
	t.apply("pause", t.machine.pause)
}

// Resume continues a paused cycle from its leftover time.
func (t *Timer) Resume() {
	t.apply("resume", t.machine.resume)
}

// Stop cancels the current cycle and discards any leftover time.
func (t *Timer) Stop() {
	t.apply("stop", func(rt *runtime, out *[]Event) {
		t.machine.stop(rt, out, EventStop)
	})
}

// Reset behaves like Stop but emits EventReset.
//
// Deprecated: use Stop.
func (t *Timer) Reset() {
	t.apply("reset", func(rt *runtime, out *[]Event) {
		t.machine.stop(rt, out, EventReset)
	})
}

// IsCounting reports whether a cycle is actively running.
func (t *Timer) IsCounting() bool {
	return t.Snapshot().Counting
}

// IsPaused reports whether a cycle is suspended with leftover time.
func (t *Timer) IsPaused() bool {
	return t.Snapshot().Paused
}

// IsStopped reports whether no cycle is running or paused. A timer waiting for
// its begin time reports stopped.
func (t *Timer) IsStopped() bool {
	return t.Snapshot().Stopped
}

// Remaining returns the time left in the current or paused cycle. It is
// computed from the clock on every call while counting.
func (t *Timer) Remaining() time.Duration {
	return t.Snapshot().Remaining
}

// RemainingMilliseconds is Remaining truncated to whole milliseconds.
func (t *Timer) RemainingMilliseconds() int64 {
	return t.Remaining().Milliseconds()
}

// State returns the active state variant.
func (t *Timer) State() State {
	return t.Snapshot().State
}

// Snapshot returns all query results under a single lock.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		State:     t.rt.state,
		Remaining: t.machine.remainingAt(&t.rt, t.machine.clk.Now()),
	}
	switch t.rt.state {
	case StateCounting:
		s.Counting = true
	case StateCountingToBeginTime:
		s.Stopped = true
	default:
		s.Paused = t.rt.remaining > 0
		s.Stopped = t.rt.remaining == 0
	}
	return s
}

// OnStart registers fn for START events. The returned func unsubscribes.
func (t *Timer) OnStart(fn func(Event)) func() { return t.events.subscribe(EventStart, fn) }

// OnPause registers fn for PAUSE events.
func (t *Timer) OnPause(fn func(Event)) func() { return t.events.subscribe(EventPause, fn) }

// OnResume registers fn for RESUME events.
func (t *Timer) OnResume(fn func(Event)) func() { return t.events.subscribe(EventResume, fn) }

// OnStop registers fn for STOP events.
func (t *Timer) OnStop(fn func(Event)) func() { return t.events.subscribe(EventStop, fn) }

// OnTick registers fn for TICK events.
func (t *Timer) OnTick(fn func(Event)) func() { return t.events.subscribe(EventTick, fn) }

// OnEvent registers fn for every event kind, including RESET.
func (t *Timer) OnEvent(fn func(Event)) func() { return t.events.subscribe("", fn) }

func (t *Timer) fire(gen uint64, w wake) {
	t.apply("wake", func(rt *runtime, out *[]Event) {
		t.machine.wake(rt, out, gen, w)
	})
}

// apply runs one transition under the lock and queues its events before the
// lock is released, so concurrent transitions are delivered in the order they
// ran. Delivery itself happens after unlock.
func (t *Timer) apply(op string, transition func(*runtime, *[]Event)) {
	var out []Event

	t.mu.Lock()
	before := t.rt.state
	transition(&t.rt, &out)
	after := t.rt.state
	drain := t.events.enqueue(out)
	t.mu.Unlock()

	if before != after {
		logger.Debugf("countdown: %s %s -> %s", op, before, after)
	}
	if drain {
		t.events.drain()
	}
}
