// Package eventbus persists domain events and fans them out to in-process
// subscribers.
package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/logger"
)

// SubscriberBuffer is the channel capacity of each subscription.
const SubscriberBuffer = 100

// Publisher defines the interface for publishing events.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

var _ Publisher = (*EventBus)(nil)

type EventBus struct {
	db          *sql.DB
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	dropped     atomic.Int64
}

func NewEventBus(db *sql.DB) *EventBus {
	return &EventBus{
		db:          db,
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

// Publish stores the event, then hands it to every subscriber of its type.
// Delivery never blocks: a subscriber whose buffer is full misses the event.
func (eb *EventBus) Publish(event domain.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}
	if event.AggregateType == "" {
		event.AggregateType = domain.AggregateTimer
	}

	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	res, err := db.ExecWithRetry(eb.db, `
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.AggregateType, event.AggregateID, event.EventType, string(eventDataJSON), event.EventVersion, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	logger.Debugf("EventBus: published %s (ID: %d, AggregateID: %s)", event.EventType, event.ID, event.AggregateID)

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers[event.EventType] {
		select {
		case ch <- event:
		default:
			eb.dropped.Add(1)
			logger.Warnf("EventBus: subscriber buffer full, dropped %s for %s", event.EventType, event.AggregateID)
		}
	}
	return nil
}

// Subscribe runs handler on a dedicated goroutine for every event of eventType,
// in publish order.
func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, SubscriberBuffer)

	eb.mu.Lock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event := <-ch:
				eb.deliver(handler, event)
			case <-eb.stopChan:
				return
			}
		}
	}()
}

// SubscribeMany subscribes handler to each of the given types.
func (eb *EventBus) SubscribeMany(types []domain.EventType, handler func(domain.Event)) {
	for _, t := range types {
		eb.Subscribe(t, handler)
	}
}

func (eb *EventBus) deliver(handler func(domain.Event), event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("EventBus: handler for %s panicked: %v", event.EventType, r)
		}
	}()
	handler(event)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Shutdown stops all subscriber goroutines and waits for them to finish.
func (eb *EventBus) Shutdown() {
	eb.stopOnce.Do(func() {
		close(eb.stopChan)
	})
	eb.wg.Wait()
	logger.Infof("EventBus shutdown complete")
}
