package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/domain"
)

// EventOption is a functional option for configuring test events.
type EventOption func(*domain.Event)

// WithAggregateID sets a specific aggregate ID.
func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

// WithCreatedAt sets the event creation time.
func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

// WithEventData merges additional data into EventData.
func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// NewLifecycleEvent creates a timer lifecycle event for testing.
func NewLifecycleEvent(eventType domain.EventType, name string, remaining time.Duration, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: domain.AggregateTimer,
		AggregateID:   uuid.New().String(),
		EventType:     eventType,
		EventVersion:  1,
		CreatedAt:     time.Now().UTC(),
		EventData: domain.LifecycleEventData{
			Name:        name,
			RemainingMS: remaining.Milliseconds(),
			At:          time.Now().UnixMilli(),
		}.Map(),
	}
	for _, opt := range opts {
		opt(&event)
	}
	return event
}

// NewTimerRecord creates a stored timer definition for testing.
func NewTimerRecord(name string, duration time.Duration) db.TimerRecord {
	return db.TimerRecord{
		ID:        uuid.New().String(),
		Name:      name,
		Duration:  duration,
		CreatedAt: time.Now(),
	}
}
