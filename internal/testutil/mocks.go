// Package testutil provides test utilities including mocks, fixtures, and test database helpers.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/mescon/tickr/internal/clock"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
)

// =============================================================================
// MockClock - Testable time abstraction
// =============================================================================

// MockClock implements clock.Clock with manually driven time. Scheduled
// functions run synchronously on the goroutine that advances the clock.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingFunc
	seq     uint64
}

type pendingFunc struct {
	executeAt time.Time
	seq       uint64
	fn        func()
	done      bool
}

// MockTimer implements clock.Timer for testing.
type MockTimer struct {
	clock *MockClock
	entry *pendingFunc
}

var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a new MockClock with the current time as initial value.
func NewMockClock() *MockClock {
	return &MockClock{now: time.Now()}
}

// NewMockClockAt creates a new MockClock with a specific initial time.
func NewMockClockAt(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow sets the mock's current time without triggering pending functions.
func (m *MockClock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc schedules f to run once the clock reaches now+d.
func (m *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	entry := &pendingFunc{executeAt: m.now.Add(d), seq: m.seq, fn: f}
	m.pending = append(m.pending, entry)
	return &MockTimer{clock: m, entry: entry}
}

// Advance moves time forward by d, running every function that comes due on
// the way in time order. Functions scheduled by those callbacks run too if
// they fall inside the window; the clock reads their due time while they run.
// Returns the number of functions executed.
func (m *MockClock) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	executed := 0
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return executed
		}
		next.done = true
		if next.executeAt.After(m.now) {
			m.now = next.executeAt
		}
		m.mu.Unlock()

		next.fn()
		executed++
	}
}

// nextDueLocked returns the earliest live entry due at or before target.
func (m *MockClock) nextDueLocked(target time.Time) *pendingFunc {
	live := m.pending[:0]
	for _, p := range m.pending {
		if !p.done {
			live = append(live, p)
		}
	}
	m.pending = live

	sort.SliceStable(m.pending, func(i, j int) bool {
		a, b := m.pending[i], m.pending[j]
		if !a.executeAt.Equal(b.executeAt) {
			return a.executeAt.Before(b.executeAt)
		}
		return a.seq < b.seq
	})
	if len(m.pending) == 0 || m.pending[0].executeAt.After(target) {
		return nil
	}
	return m.pending[0]
}

// FireAll runs every currently pending function without moving time.
// Functions scheduled while firing are left pending.
func (m *MockClock) FireAll() int {
	m.mu.Lock()
	var toExecute []func()
	for _, p := range m.pending {
		if !p.done {
			p.done = true
			toExecute = append(toExecute, p.fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// PendingCount returns the number of scheduled functions that haven't been
// executed or stopped.
func (m *MockClock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.pending {
		if !p.done {
			count++
		}
	}
	return count
}

// Stop prevents the timer from firing. Returns true if the timer was stopped,
// false if it had already fired or been stopped.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.entry.done {
		return false
	}
	t.entry.done = true
	return true
}

// =============================================================================
// MockEventBus - In-memory eventbus.Publisher
// =============================================================================

// MockEventBus captures published events and notifies subscribers
// synchronously.
type MockEventBus struct {
	mu              sync.Mutex
	PublishedEvents []domain.Event
	Subscribers     map[domain.EventType][]func(domain.Event)
	PublishErr      error
}

var _ eventbus.Publisher = (*MockEventBus)(nil)

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		Subscribers: make(map[domain.EventType][]func(domain.Event)),
	}
}

// Publish stores the event and notifies subscribers synchronously.
func (m *MockEventBus) Publish(event domain.Event) error {
	m.mu.Lock()
	if m.PublishErr != nil {
		err := m.PublishErr
		m.mu.Unlock()
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.ID = int64(len(m.PublishedEvents) + 1)
	m.PublishedEvents = append(m.PublishedEvents, event)
	subscribers := append([]func(domain.Event){}, m.Subscribers[event.EventType]...)
	m.mu.Unlock()

	for _, handler := range subscribers {
		handler(event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (m *MockEventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribers[eventType] = append(m.Subscribers[eventType], handler)
}

// GetEvents returns all published events of a given type.
func (m *MockEventBus) GetEvents(eventType domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Types returns the type of every published event in order.
func (m *MockEventBus) Types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, len(m.PublishedEvents))
	for i, e := range m.PublishedEvents {
		types[i] = e.EventType
	}
	return types
}

// EventCount returns the number of events of a given type.
func (m *MockEventBus) EventCount(eventType domain.EventType) int {
	return len(m.GetEvents(eventType))
}

// LastEvent returns the most recently published event, or nil if none.
func (m *MockEventBus) LastEvent() *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PublishedEvents) == 0 {
		return nil
	}
	e := m.PublishedEvents[len(m.PublishedEvents)-1]
	return &e
}

// Reset clears all published events and subscribers.
func (m *MockEventBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = nil
	m.Subscribers = make(map[domain.EventType][]func(domain.Event))
}
