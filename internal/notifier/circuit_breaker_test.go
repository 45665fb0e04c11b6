package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/tickr/internal/testutil"
)

func newTestBreaker(cfg BreakerConfig) (*circuitBreaker, *testutil.MockClock) {
	clk := testutil.NewMockClockAt(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	return newCircuitBreaker(cfg, clk), clk
}

// =============================================================================
// State transitions
// =============================================================================

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	assert.False(t, cb.recordFailure())
	assert.False(t, cb.recordFailure())
	assert.Equal(t, CircuitClosed, cb.currentState())
	assert.True(t, cb.allow())

	assert.True(t, cb.recordFailure())
	assert.Equal(t, CircuitOpen, cb.currentState())
	assert.False(t, cb.allow())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 2})

	cb.recordFailure()
	cb.recordSuccess()
	cb.recordFailure()
	assert.Equal(t, CircuitClosed, cb.currentState())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb, clk := newTestBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, SuccessThreshold: 2})
	require.True(t, cb.recordFailure())

	clk.Advance(59 * time.Second)
	assert.False(t, cb.allow())

	clk.Advance(time.Second)
	assert.True(t, cb.allow())
	assert.Equal(t, CircuitHalfOpen, cb.currentState())

	cb.recordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.currentState())
	cb.recordSuccess()
	assert.Equal(t, CircuitClosed, cb.currentState())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	cb, clk := newTestBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.recordFailure()

	clk.Advance(time.Minute)
	require.True(t, cb.allow())
	assert.True(t, cb.recordFailure())
	assert.Equal(t, CircuitOpen, cb.currentState())

	// the timeout restarts from the failed trial
	clk.Advance(30 * time.Second)
	assert.False(t, cb.allow())
}

func TestBreakerConfig_Defaults(t *testing.T) {
	cfg := BreakerConfig{}.withDefaults()
	assert.Equal(t, DefaultBreakerConfig(), cfg)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

// =============================================================================
// Registry
// =============================================================================

func TestBreakerRegistry_OneBreakerPerURL(t *testing.T) {
	r := newBreakerRegistry(BreakerConfig{FailureThreshold: 1}, testutil.NewMockClock())

	a := r.get("generic+https://a.example/hook")
	assert.Same(t, a, r.get("generic+https://a.example/hook"))

	a.recordFailure()
	assert.Equal(t, CircuitOpen, a.currentState())
	assert.Equal(t, CircuitClosed, r.get("generic+https://b.example/hook").currentState())
}
