package domain

import (
	"time"
)

type EventType string

const (
	TimerCreated EventType = "TimerCreated"
	TimerDeleted EventType = "TimerDeleted"
	TimerStarted EventType = "TimerStarted"
	TimerPaused  EventType = "TimerPaused"
	TimerResumed EventType = "TimerResumed"
	TimerStopped EventType = "TimerStopped"
	TimerReset   EventType = "TimerReset" // deprecated reset path, kept for old clients
	TimerTicked  EventType = "TimerTicked"

	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

// AggregateTimer is the aggregate type of every timer event.
const AggregateTimer = "timer"

// LifecycleEventTypes lists the event types produced by running timers.
var LifecycleEventTypes = []EventType{
	TimerStarted,
	TimerPaused,
	TimerResumed,
	TimerStopped,
	TimerReset,
	TimerTicked,
}

// AllEventTypes lists every event type the service publishes.
var AllEventTypes = append([]EventType{TimerCreated, TimerDeleted}, append(LifecycleEventTypes, NotificationSent, NotificationFailed)...)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	EventVersion  int                    `json:"event_version"`
	CreatedAt     time.Time              `json:"created_at"`
}

// =============================================================================
// Type-safe event data accessors
// =============================================================================

// GetString safely extracts a string field from EventData.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// =============================================================================
// Typed event data
// =============================================================================

// LifecycleEventData is the payload of every timer lifecycle event.
type LifecycleEventData struct {
	Name        string `json:"name"`
	RemainingMS int64  `json:"remaining_ms"`
	// At is the timer clock instant of the transition, in Unix milliseconds.
	At int64 `json:"at"`
}

// Map converts the payload into EventData form.
func (d LifecycleEventData) Map() map[string]interface{} {
	return map[string]interface{}{
		"name":         d.Name,
		"remaining_ms": d.RemainingMS,
		"at":           d.At,
	}
}

// ParseLifecycleEventData extracts typed lifecycle data from an event.
func (e *Event) ParseLifecycleEventData() (LifecycleEventData, bool) {
	remaining, ok := e.GetInt64("remaining_ms")
	if !ok {
		return LifecycleEventData{}, false
	}
	return LifecycleEventData{
		Name:        e.GetStringOr("name", ""),
		RemainingMS: remaining,
		At:          e.GetInt64Or("at", 0),
	}, true
}
