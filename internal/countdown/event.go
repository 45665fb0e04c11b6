package countdown

import "time"

// EventKind tags a lifecycle event.
type EventKind string

const (
	EventStart  EventKind = "START"
	EventPause  EventKind = "PAUSE"
	EventResume EventKind = "RESUME"
	EventStop   EventKind = "STOP"
	EventReset  EventKind = "RESET" // emitted only by the deprecated Reset
	EventTick   EventKind = "TICK"
)

// Event is a single lifecycle transition pushed to subscribers.
type Event struct {
	Kind EventKind
	// At is the clock time at which the transition happened.
	At time.Time
	// Remaining is the time left in the cycle right after the transition.
	Remaining time.Duration
}
