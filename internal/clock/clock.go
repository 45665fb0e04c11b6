// Package clock abstracts the time source and one-shot scheduling used by timers.
// Production code uses RealClock; tests inject testutil.MockClock for deterministic
// behavior or a ScaledClock to run real schedules faster than wall time.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time and schedules delayed callbacks.
type Clock interface {
	// AfterFunc waits for the duration to elapse and then calls f in its own goroutine.
	// Returns a Timer that can be used to cancel the call.
	AfterFunc(d time.Duration, f func()) Timer
	// Now returns the current time.
	Now() time.Time
}

// Timer represents a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the Timer from firing. Returns true if the call was stopped,
	// false if the timer has already expired or been stopped.
	Stop() bool
}

// Cancel stops t if it is non-nil. Safe to call any number of times.
func Cancel(t Timer) {
	if t != nil {
		t.Stop()
	}
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// NewRealClock creates a new RealClock.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// AfterFunc implements Clock.AfterFunc using time.AfterFunc.
func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Now implements Clock.Now using time.Now.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// ScaledClock runs faster (or slower) than wall time by a constant factor.
// A factor of 60 turns one real second into one reported minute.
type ScaledClock struct {
	mu     sync.Mutex
	factor float64
	origin time.Time
	start  time.Time
}

// NewScaledClock creates a ScaledClock anchored at the current wall time.
// Non-positive factors are treated as 1.
func NewScaledClock(factor float64) *ScaledClock {
	if factor <= 0 {
		factor = 1
	}
	now := time.Now()
	return &ScaledClock{factor: factor, origin: now, start: now}
}

// Now returns origin + scaled real elapsed time.
func (c *ScaledClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.start)
	return c.origin.Add(time.Duration(float64(elapsed) * c.factor))
}

// AfterFunc schedules f after d of scaled time.
func (c *ScaledClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(time.Duration(float64(d)/c.factor), f)
}
