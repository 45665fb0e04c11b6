package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/testutil"
)

type fakeStats struct{ registered, counting int }

func (f *fakeStats) Count() int         { return f.registered }
func (f *fakeStats) CountingCount() int { return f.counting }

func newTestMetrics(t *testing.T) (*MetricsService, *testutil.MockEventBus, *fakeStats) {
	t.Helper()
	bus := testutil.NewMockEventBus()
	stats := &fakeStats{}
	m := NewMetricsService(bus, stats)
	m.Start()
	return m, bus, stats
}

func TestMetrics_CountsLifecycleEvents(t *testing.T) {
	m, bus, _ := newTestMetrics(t)

	for _, et := range []domain.EventType{domain.TimerStarted, domain.TimerTicked, domain.TimerStarted, domain.TimerStopped} {
		require.NoError(t, bus.Publish(testutil.NewLifecycleEvent(et, "tea", 0)))
	}

	assert.Equal(t, 2.0, promtest.ToFloat64(m.timerEventsTotal.WithLabelValues("started")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.timerEventsTotal.WithLabelValues("ticked")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.timerEventsTotal.WithLabelValues("stopped")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.timerEventsTotal.WithLabelValues("paused")))
}

func TestMetrics_ObservesPausedRemaining(t *testing.T) {
	m, bus, _ := newTestMetrics(t)

	require.NoError(t, bus.Publish(testutil.NewLifecycleEvent(domain.TimerPaused, "tea", 0)))

	assert.Equal(t, 1, promtest.CollectAndCount(m.pausedRemaining))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.timerEventsTotal.WithLabelValues("paused")))
}

func TestMetrics_CountsNotifications(t *testing.T) {
	m, bus, _ := newTestMetrics(t)

	require.NoError(t, bus.Publish(domain.Event{AggregateID: "t", EventType: domain.NotificationSent}))
	require.NoError(t, bus.Publish(domain.Event{AggregateID: "t", EventType: domain.NotificationSent}))
	require.NoError(t, bus.Publish(domain.Event{AggregateID: "t", EventType: domain.NotificationFailed}))

	assert.Equal(t, 2.0, promtest.ToFloat64(m.notificationsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.notificationsTotal.WithLabelValues("failed")))
}

func TestMetrics_HandlerExposesGauges(t *testing.T) {
	m, _, stats := newTestMetrics(t)
	stats.registered = 3
	stats.counting = 2

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "tickr_timers_registered 3"), text)
	assert.True(t, strings.Contains(text, "tickr_timers_counting 2"))
	assert.Contains(t, text, "go_goroutines")
}

func TestEventKindLabel(t *testing.T) {
	assert.Equal(t, "started", eventKindLabel(domain.TimerStarted))
	assert.Equal(t, "reset", eventKindLabel(domain.TimerReset))
	assert.Equal(t, "ticked", eventKindLabel(domain.TimerTicked))
}
