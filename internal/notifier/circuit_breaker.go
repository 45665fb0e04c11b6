package notifier

import (
	"sync"
	"time"

	"github.com/mescon/tickr/internal/clock"
)

// CircuitState is the state of a notification endpoint's circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets every send through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects sends until the reset timeout has passed.
	CircuitOpen
	// CircuitHalfOpen lets sends through to test whether the endpoint recovered.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures when an endpoint's circuit opens and closes again.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed sends that opens
	// the circuit. Default: 5
	FailureThreshold int
	// ResetTimeout is how long an open circuit rejects sends before letting a
	// trial send through. Default: 5 minutes
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive successful sends in the
	// half-open state that close the circuit. Default: 1
	SuccessThreshold int
}

// DefaultBreakerConfig returns the breaker settings used by NewNotifier.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     5 * time.Minute,
		SuccessThreshold: 1,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	return c
}

// circuitBreaker guards a single notification URL. A webhook that keeps
// failing is skipped for ResetTimeout instead of being retried on every tick.
type circuitBreaker struct {
	mu          sync.Mutex
	config      BreakerConfig
	clock       clock.Clock
	state       CircuitState
	failures    int // consecutive
	successes   int // consecutive, half-open only
	lastFailure time.Time
}

func newCircuitBreaker(config BreakerConfig, clk clock.Clock) *circuitBreaker {
	return &circuitBreaker{config: config.withDefaults(), clock: clk}
}

// allow reports whether a send may go out. An open circuit turns half-open
// once ResetTimeout has passed since the last failure.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.clock.Now().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.state = CircuitHalfOpen
		cb.successes = 0
		return true
	}
	return false
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitClosed {
		return
	}
	cb.successes++
	if cb.successes >= cb.config.SuccessThreshold {
		cb.state = CircuitClosed
		cb.successes = 0
	}
}

// recordFailure returns true when this failure opened the circuit.
func (cb *circuitBreaker) recordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0
	cb.lastFailure = cb.clock.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
			return true
		}
	case CircuitHalfOpen:
		// trial send failed
		cb.state = CircuitOpen
		return true
	}
	return false
}

func (cb *circuitBreaker) currentState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// breakerRegistry holds one breaker per notification URL, so timers sharing
// a webhook share its health.
type breakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*circuitBreaker
	config   BreakerConfig
	clock    clock.Clock
}

func newBreakerRegistry(config BreakerConfig, clk clock.Clock) *breakerRegistry {
	return &breakerRegistry{
		breakers: make(map[string]*circuitBreaker),
		config:   config,
		clock:    clk,
	}
}

func (r *breakerRegistry) get(serviceURL string) *circuitBreaker {
	r.mu.RLock()
	cb, exists := r.breakers[serviceURL]
	r.mu.RUnlock()
	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, exists = r.breakers[serviceURL]; exists {
		return cb
	}
	cb = newCircuitBreaker(r.config, r.clock)
	r.breakers[serviceURL] = cb
	return cb
}
