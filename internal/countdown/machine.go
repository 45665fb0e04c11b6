package countdown

import (
	"time"

	"github.com/mescon/tickr/internal/clock"
)

// State is the active variant of the timer state machine.
type State int

const (
	// StateStable is idle (remaining == 0) or paused (remaining > 0).
	StateStable State = iota
	// StateCountingToBeginTime waits for Options.BeginTime before the first cycle.
	StateCountingToBeginTime
	// StateCounting has a cycle running, backed by one pending callback.
	StateCounting
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "stable"
	case StateCountingToBeginTime:
		return "counting_to_begin_time"
	case StateCounting:
		return "counting"
	default:
		return "unknown"
	}
}

// runtime is the mutable part of a timer. Only the machine writes it, and only
// while the owning Timer holds its lock.
type runtime struct {
	state     State
	remaining time.Duration
	startedAt time.Time // valid only in StateCounting
	pending   clock.Timer
	gen       uint64 // bumped on every schedule/cancel; stale callbacks are dropped
}

// wake identifies what a scheduled callback was armed for.
type wake int

const (
	wakeBegin wake = iota
	wakeCycle
)

// machine holds the immutable configuration and the transition rules.
// Every transition receives the runtime explicitly and appends the events it
// produces to out; dispatch happens later, outside the lock.
type machine struct {
	duration  time.Duration
	cont      bool
	beginTime time.Time
	clk       clock.Clock
	fire      func(gen uint64, w wake)
}

func (m *machine) start(rt *runtime, out *[]Event) {
	if rt.state != StateStable {
		return
	}
	if !m.beginTime.IsZero() {
		rt.state = StateCountingToBeginTime
		m.armBeginTime(rt, out)
		return
	}
	rt.state = StateCounting
	m.beginSegment(rt, out)
}

func (m *machine) pause(rt *runtime, out *[]Event) {
	switch rt.state {
	case StateCountingToBeginTime:
		m.cancel(rt)
		rt.state = StateStable
	case StateCounting:
		m.cancel(rt)
		now := m.clk.Now()
		rt.remaining = m.remainingAt(rt, now)
		rt.startedAt = time.Time{}
		rt.state = StateStable
		*out = append(*out, Event{Kind: EventPause, At: now, Remaining: rt.remaining})
	}
}

func (m *machine) resume(rt *runtime, out *[]Event) {
	if rt.state != StateStable || rt.remaining <= 0 {
		return
	}
	rt.state = StateCounting
	m.beginSegment(rt, out)
	*out = append(*out, Event{Kind: EventResume, At: rt.startedAt, Remaining: rt.remaining})
}

// stop cancels and clears the cycle. Stop and the deprecated Reset share it and
// differ only in the kind they emit.
func (m *machine) stop(rt *runtime, out *[]Event, kind EventKind) {
	switch rt.state {
	case StateStable:
		if rt.remaining == 0 {
			return
		}
		rt.remaining = 0
	case StateCountingToBeginTime:
		// Counting never began, so nothing observable stops.
		m.cancel(rt)
		rt.remaining = 0
		rt.state = StateStable
		return
	case StateCounting:
		m.cancel(rt)
		rt.remaining = 0
		rt.startedAt = time.Time{}
		rt.state = StateStable
	}
	*out = append(*out, Event{Kind: kind, At: m.clk.Now()})
}

// wake handles a fired callback. gen must match the runtime's current
// generation, otherwise the callback was cancelled or superseded.
func (m *machine) wake(rt *runtime, out *[]Event, gen uint64, w wake) {
	if gen != rt.gen {
		return
	}
	rt.pending = nil

	switch {
	case w == wakeBegin && rt.state == StateCountingToBeginTime:
		rt.state = StateCounting
		m.beginSegment(rt, out)
	case w == wakeCycle && rt.state == StateCounting:
		*out = append(*out, Event{Kind: EventTick, At: m.clk.Now()})
		if m.cont {
			rt.remaining = m.duration
			m.beginSegment(rt, out)
			return
		}
		rt.remaining = 0
		rt.startedAt = time.Time{}
		rt.state = StateStable
	}
}

func (m *machine) armBeginTime(rt *runtime, out *[]Event) {
	delay := m.beginTime.Sub(m.clk.Now())
	if delay < 0 {
		rt.state = StateCounting
		m.beginSegment(rt, out)
		return
	}
	m.schedule(rt, delay, wakeBegin)
}

// beginSegment starts a counting segment. A fresh cycle (remaining == 0) loads
// the full duration and emits START; a resumed one keeps its leftover time.
func (m *machine) beginSegment(rt *runtime, out *[]Event) {
	now := m.clk.Now()
	if rt.remaining == 0 {
		rt.remaining = m.duration
		*out = append(*out, Event{Kind: EventStart, At: now, Remaining: rt.remaining})
	}
	rt.startedAt = now
	m.schedule(rt, rt.remaining, wakeCycle)
}

func (m *machine) remainingAt(rt *runtime, now time.Time) time.Duration {
	switch rt.state {
	case StateCounting:
		left := rt.remaining - now.Sub(rt.startedAt)
		if left < 0 {
			return 0
		}
		return left
	case StateCountingToBeginTime:
		return 0
	default:
		return rt.remaining
	}
}

func (m *machine) schedule(rt *runtime, d time.Duration, w wake) {
	clock.Cancel(rt.pending)
	rt.gen++
	gen := rt.gen
	rt.pending = m.clk.AfterFunc(d, func() { m.fire(gen, w) })
}

func (m *machine) cancel(rt *runtime) {
	clock.Cancel(rt.pending)
	rt.pending = nil
	rt.gen++
}
