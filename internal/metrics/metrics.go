package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
)

// TimerStats reports live timer counts for the gauges.
type TimerStats interface {
	Count() int
	CountingCount() int
}

// MetricsService exposes Prometheus metrics for tickr
type MetricsService struct {
	eventBus eventbus.Publisher
	registry *prometheus.Registry

	// Counters
	timerEventsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	// Histograms
	pausedRemaining prometheus.Histogram
}

// NewMetricsService creates the collectors and registers them, together with
// the Go and process collectors, on a dedicated registry.
func NewMetricsService(eb eventbus.Publisher, stats TimerStats) *MetricsService {
	m := &MetricsService{
		eventBus: eb,
		registry: prometheus.NewRegistry(),

		timerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickr_timer_events_total",
				Help: "Total number of timer lifecycle events by kind",
			},
			[]string{"kind"}, // started, paused, resumed, stopped, reset, ticked
		),

		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickr_notifications_total",
				Help: "Total number of notifications by outcome",
			},
			[]string{"outcome"}, // sent, failed
		),

		pausedRemaining: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tickr_pause_remaining_seconds",
				Help:    "Time left in the cycle when a timer is paused",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s to ~4.5h
			},
		),
	}

	m.registry.MustRegister(
		m.timerEventsTotal,
		m.notificationsTotal,
		m.pausedRemaining,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tickr_timers_registered",
			Help: "Number of timers currently registered",
		}, func() float64 { return float64(stats.Count()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tickr_timers_counting",
			Help: "Number of timers currently counting down",
		}, func() float64 { return float64(stats.CountingCount()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Start subscribes to events and updates metrics
func (m *MetricsService) Start() {
	for _, t := range domain.LifecycleEventTypes {
		m.eventBus.Subscribe(t, m.handleLifecycle)
	}
	m.eventBus.Subscribe(domain.NotificationSent, m.handleNotification)
	m.eventBus.Subscribe(domain.NotificationFailed, m.handleNotification)

	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsService) handleLifecycle(event domain.Event) {
	m.timerEventsTotal.WithLabelValues(eventKindLabel(event.EventType)).Inc()

	if event.EventType == domain.TimerPaused {
		if ms, ok := event.GetInt64("remaining_ms"); ok {
			m.pausedRemaining.Observe(float64(ms) / 1000)
		}
	}
}

func (m *MetricsService) handleNotification(event domain.Event) {
	outcome := "sent"
	if event.EventType == domain.NotificationFailed {
		outcome = "failed"
	}
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

// eventKindLabel turns TimerStarted into "started".
func eventKindLabel(t domain.EventType) string {
	return strings.ToLower(strings.TrimPrefix(string(t), "Timer"))
}
