package clock

import (
	"sync"
	"testing"
	"time"
)

// =============================================================================
// RealClock tests
// =============================================================================

func TestNewRealClock(t *testing.T) {
	clock := NewRealClock()
	if clock == nil {
		t.Fatal("NewRealClock() should not return nil")
	}
}

func TestRealClock_Now(t *testing.T) {
	clock := NewRealClock()

	before := time.Now()
	got := clock.Now()
	after := time.Now()

	if got.Before(before) {
		t.Errorf("clock.Now() returned %v which is before %v", got, before)
	}
	if got.After(after) {
		t.Errorf("clock.Now() returned %v which is after %v", got, after)
	}
}

func TestRealClock_AfterFunc(t *testing.T) {
	clock := NewRealClock()

	var wg sync.WaitGroup
	wg.Add(1)

	timer := clock.AfterFunc(10*time.Millisecond, func() {
		wg.Done()
	})
	if timer == nil {
		t.Fatal("AfterFunc should return a non-nil Timer")
	}

	wg.Wait()
}

func TestRealClock_AfterFunc_Stop_BeforeFiring(t *testing.T) {
	clock := NewRealClock()

	fired := make(chan struct{}, 1)
	timer := clock.AfterFunc(100*time.Millisecond, func() {
		fired <- struct{}{}
	})

	if !timer.Stop() {
		t.Error("Stop() should return true when timer hasn't fired yet")
	}

	select {
	case <-fired:
		t.Error("Callback should not execute after Stop()")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRealClock_AfterFunc_StopIsIdempotent(t *testing.T) {
	clock := NewRealClock()

	var wg sync.WaitGroup
	wg.Add(1)
	timer := clock.AfterFunc(5*time.Millisecond, wg.Done)
	wg.Wait()

	if timer.Stop() {
		t.Error("Stop() should return false when timer has already fired")
	}
	if timer.Stop() {
		t.Error("second Stop() should also return false")
	}
}

// =============================================================================
// Cancel helper
// =============================================================================

func TestCancel_NilTimer(t *testing.T) {
	Cancel(nil)
}

func TestCancel_StopsPendingTimer(t *testing.T) {
	clock := NewRealClock()
	fired := make(chan struct{}, 1)
	timer := clock.AfterFunc(50*time.Millisecond, func() { fired <- struct{}{} })

	Cancel(timer)
	Cancel(timer)

	select {
	case <-fired:
		t.Error("cancelled callback fired")
	case <-time.After(100 * time.Millisecond):
	}
}

// =============================================================================
// ScaledClock tests
// =============================================================================

func TestScaledClock_NowAdvancesFaster(t *testing.T) {
	clock := NewScaledClock(100)

	first := clock.Now()
	time.Sleep(10 * time.Millisecond)
	elapsed := clock.Now().Sub(first)

	if elapsed < 500*time.Millisecond {
		t.Errorf("expected at least 500ms of scaled time, got %v", elapsed)
	}
}

func TestScaledClock_AfterFuncShortensDelay(t *testing.T) {
	clock := NewScaledClock(100)

	done := make(chan struct{})
	start := time.Now()
	clock.AfterFunc(2*time.Second, func() { close(done) })

	select {
	case <-done:
		if real := time.Since(start); real > time.Second {
			t.Errorf("scaled callback took %v of real time", real)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scaled callback never fired")
	}
}

func TestScaledClock_NonPositiveFactor(t *testing.T) {
	clock := NewScaledClock(0)
	if clock.factor != 1 {
		t.Errorf("factor = %v, want 1", clock.factor)
	}
}

// =============================================================================
// Interface compliance tests
// =============================================================================

func TestRealClock_ImplementsClock(t *testing.T) {
	t.Helper()
	var _ Clock = (*RealClock)(nil)
	var _ Clock = (*ScaledClock)(nil)
}
