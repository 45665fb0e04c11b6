// Package notifier sends a message through shoutrrr when a timer ticks.
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/mescon/tickr/internal/clock"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
)

// TimerLookup resolves a timer id to its name and notification URL.
type TimerLookup interface {
	NotifyTarget(id string) (name, notifyURL string, ok bool)
}

// SendFunc delivers one message to a shoutrrr URL.
type SendFunc func(serviceURL, message string) error

// Notifier handles sending notifications based on events
type Notifier struct {
	eb       eventbus.Publisher
	timers   TimerLookup
	throttle time.Duration
	clock    clock.Clock
	send     SendFunc
	breakers *breakerRegistry

	lastSent map[string]time.Time // per-timer throttling
	mu       sync.Mutex
	wg       sync.WaitGroup // tracks in-flight sends for clean shutdown
	stopped  bool
}

// NewNotifier creates a notifier that sends at most one message per timer
// every throttle. Each notification URL gets a circuit breaker with
// DefaultBreakerConfig.
func NewNotifier(eb eventbus.Publisher, timers TimerLookup, throttle time.Duration) *Notifier {
	clk := clock.NewRealClock()
	return &Notifier{
		eb:       eb,
		timers:   timers,
		throttle: throttle,
		clock:    clk,
		send:     shoutrrr.Send,
		breakers: newBreakerRegistry(DefaultBreakerConfig(), clk),
		lastSent: make(map[string]time.Time),
	}
}

// WithSender replaces shoutrrr delivery, for tests.
func (n *Notifier) WithSender(send SendFunc) *Notifier {
	n.send = send
	return n
}

// WithClock replaces the throttle and circuit breaker clock, for tests.
// Call it before Start.
func (n *Notifier) WithClock(clk clock.Clock) *Notifier {
	n.clock = clk
	n.breakers = newBreakerRegistry(n.breakers.config, clk)
	return n
}

// WithBreakerConfig replaces the per-URL circuit breaker settings. Call it
// before Start.
func (n *Notifier) WithBreakerConfig(cfg BreakerConfig) *Notifier {
	n.breakers = newBreakerRegistry(cfg, n.clock)
	return n
}

// CircuitState returns the breaker state for a notification URL.
func (n *Notifier) CircuitState(serviceURL string) CircuitState {
	return n.breakers.get(serviceURL).currentState()
}

// Start begins listening for events
func (n *Notifier) Start() {
	n.eb.Subscribe(domain.TimerTicked, n.handleEvent)
	n.eb.Subscribe(domain.TimerDeleted, func(ev domain.Event) {
		n.mu.Lock()
		delete(n.lastSent, ev.AggregateID)
		n.mu.Unlock()
	})
	logger.Infof("Notifier started (throttle: %s)", n.throttle)
}

// Stop waits for in-flight sends and ignores further events.
func (n *Notifier) Stop() {
	n.mu.Lock()
	n.stopped = true
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) handleEvent(ev domain.Event) {
	name, serviceURL, ok := n.timers.NotifyTarget(ev.AggregateID)
	if !ok || serviceURL == "" {
		return
	}

	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	now := n.clock.Now()
	if last, seen := n.lastSent[ev.AggregateID]; seen && now.Sub(last) < n.throttle {
		n.mu.Unlock()
		logger.Debugf("Throttled notification for timer %s", name)
		return
	}
	if !n.breakers.get(serviceURL).allow() {
		n.mu.Unlock()
		logger.Debugf("Skipped notification for timer %s: endpoint circuit is open", name)
		return
	}
	n.lastSent[ev.AggregateID] = now
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		n.sendNotification(ev, name, serviceURL)
	}()
}

func (n *Notifier) sendNotification(ev domain.Event, name, serviceURL string) {
	message := formatMessage(ev, name)
	provider := ProviderLabel(serviceURL)

	err := n.send(serviceURL, message)
	breaker := n.breakers.get(serviceURL)
	if err != nil {
		if breaker.recordFailure() {
			logger.Warnf("Notifications via %s suspended for %s after repeated failures", provider, breaker.config.ResetTimeout)
		}
	} else {
		breaker.recordSuccess()
	}

	data := map[string]interface{}{
		"name":          name,
		"provider":      provider,
		"trigger_event": string(ev.EventType),
	}
	eventType := domain.NotificationSent
	if err != nil {
		logger.Errorf("Failed to send notification for timer %s via %s: %v", name, provider, err)
		eventType = domain.NotificationFailed
		data["error"] = err.Error()
	} else {
		logger.Debugf("Sent notification for timer %s via %s", name, provider)
	}

	if pubErr := n.eb.Publish(domain.Event{
		AggregateType: domain.AggregateTimer,
		AggregateID:   ev.AggregateID,
		EventType:     eventType,
		EventData:     data,
	}); pubErr != nil {
		logger.Errorf("Failed to publish %s event: %v", eventType, pubErr)
	}
}

func formatMessage(ev domain.Event, name string) string {
	at := time.UnixMilli(ev.GetInt64Or("at", ev.CreatedAt.UnixMilli())).UTC()
	return fmt.Sprintf("⏰ Timer %q finished at %s", name, at.Format(time.RFC3339))
}
