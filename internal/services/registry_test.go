package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/tickr/internal/config"
	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/testutil"
)

var registryEpoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type registryFixture struct {
	registry *TimerRegistry
	repo     *db.Repository
	bus      *testutil.MockEventBus
	clock    *testutil.MockClock
}

func newRegistryFixture(t *testing.T) registryFixture {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	bus := testutil.NewMockEventBus()
	clk := testutil.NewMockClockAt(registryEpoch)
	return registryFixture{
		registry: NewTimerRegistry(repo, bus, clk),
		repo:     repo,
		bus:      bus,
		clock:    clk,
	}
}

func (f registryFixture) create(t *testing.T, name string, d time.Duration) TimerStatus {
	t.Helper()
	status, err := f.registry.Create(TimerDefinition{Name: name, Duration: d})
	require.NoError(t, err)
	return status
}

// =============================================================================
// Create / validation
// =============================================================================

func TestRegistry_Create(t *testing.T) {
	f := newRegistryFixture(t)

	status, err := f.registry.Create(TimerDefinition{
		Name:      "  tea  ",
		Duration:  3 * time.Minute,
		BeginCron: "0 9 * * *",
		NotifyURL: "https://example.com/hook",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, status.ID)
	assert.Equal(t, "tea", status.Name)
	assert.Equal(t, int64(180000), status.DurationMS)
	assert.Equal(t, "stable", status.State)
	assert.True(t, status.Stopped)
	assert.True(t, status.Notify)
	assert.Equal(t, "0 9 * * *", status.BeginCron)

	created := f.bus.GetEvents(domain.TimerCreated)
	require.Len(t, created, 1)
	assert.Equal(t, status.ID, created[0].AggregateID)
	assert.Equal(t, "0 9 * * *", created[0].GetStringOr("begin_cron", ""))

	records, err := f.repo.ListTimers()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "generic+https://example.com/hook", records[0].NotifyURL)
}

func TestRegistry_CreateValidation(t *testing.T) {
	f := newRegistryFixture(t)

	tests := []struct {
		name string
		def  TimerDefinition
	}{
		{"empty name", TimerDefinition{Name: " ", Duration: time.Second}},
		{"zero duration", TimerDefinition{Name: "a", Duration: 0}},
		{"sub-millisecond", TimerDefinition{Name: "a", Duration: time.Microsecond}},
		{"negative duration", TimerDefinition{Name: "a", Duration: -time.Second}},
		{"bad cron", TimerDefinition{Name: "a", Duration: time.Second, BeginCron: "every tuesday"}},
		{"bad notify url", TimerDefinition{Name: "a", Duration: time.Second, NotifyURL: "nosuchservice://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.registry.Create(tt.def)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
	assert.Zero(t, f.registry.Count())
}

func TestRegistry_CreateDuplicateName(t *testing.T) {
	f := newRegistryFixture(t)
	f.create(t, "tea", time.Minute)

	_, err := f.registry.Create(TimerDefinition{Name: "tea", Duration: time.Minute})
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 1, f.registry.Count())
}

// =============================================================================
// Control & event bridging
// =============================================================================

func TestRegistry_LifecycleIsPublished(t *testing.T) {
	f := newRegistryFixture(t)
	status := f.create(t, "tea", time.Second)

	_, err := f.registry.Start(status.ID)
	require.NoError(t, err)
	f.clock.Advance(400 * time.Millisecond)

	paused, err := f.registry.Pause(status.ID)
	require.NoError(t, err)
	assert.True(t, paused.Paused)
	assert.Equal(t, int64(600), paused.RemainingMS)

	_, err = f.registry.Resume(status.ID)
	require.NoError(t, err)
	f.clock.Advance(600 * time.Millisecond)

	assert.Equal(t, []domain.EventType{
		domain.TimerCreated,
		domain.TimerStarted,
		domain.TimerPaused,
		domain.TimerResumed,
		domain.TimerTicked,
	}, f.bus.Types())

	pause := f.bus.GetEvents(domain.TimerPaused)[0]
	data, ok := pause.ParseLifecycleEventData()
	require.True(t, ok)
	assert.Equal(t, "tea", data.Name)
	assert.Equal(t, int64(600), data.RemainingMS)
	assert.Equal(t, registryEpoch.Add(400*time.Millisecond).UnixMilli(), data.At)
	assert.Equal(t, domain.AggregateTimer, pause.AggregateType)
}

func TestRegistry_StopAndReset(t *testing.T) {
	f := newRegistryFixture(t)
	status := f.create(t, "tea", time.Second)

	_, _ = f.registry.Start(status.ID)
	stopped, err := f.registry.Stop(status.ID)
	require.NoError(t, err)
	assert.True(t, stopped.Stopped)

	_, _ = f.registry.Start(status.ID)
	_, err = f.registry.Reset(status.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.bus.EventCount(domain.TimerStopped))
	assert.Equal(t, 1, f.bus.EventCount(domain.TimerReset))
}

func TestRegistry_UnknownID(t *testing.T) {
	f := newRegistryFixture(t)

	ops := map[string]func(string) (TimerStatus, error){
		"start":  f.registry.Start,
		"pause":  f.registry.Pause,
		"resume": f.registry.Resume,
		"stop":   f.registry.Stop,
		"reset":  f.registry.Reset,
		"status": f.registry.Status,
	}
	for name, op := range ops {
		_, err := op("missing")
		assert.ErrorIs(t, err, ErrTimerNotFound, name)
	}
	assert.ErrorIs(t, f.registry.Delete("missing"), ErrTimerNotFound)
}

func TestRegistry_CountingCount(t *testing.T) {
	f := newRegistryFixture(t)
	a := f.create(t, "a", time.Second)
	f.create(t, "b", time.Second)

	assert.Equal(t, 2, f.registry.Count())
	assert.Zero(t, f.registry.CountingCount())

	_, _ = f.registry.Start(a.ID)
	assert.Equal(t, 1, f.registry.CountingCount())

	f.clock.Advance(time.Second)
	assert.Zero(t, f.registry.CountingCount())
}

// =============================================================================
// Delete / List / Load
// =============================================================================

func TestRegistry_DeleteStopsRunningTimer(t *testing.T) {
	f := newRegistryFixture(t)
	status := f.create(t, "tea", time.Second)
	_, _ = f.registry.Start(status.ID)

	require.NoError(t, f.registry.Delete(status.ID))

	assert.Zero(t, f.clock.PendingCount())
	assert.Equal(t, domain.TimerDeleted, f.bus.LastEvent().EventType)
	assert.Equal(t, 1, f.bus.EventCount(domain.TimerStopped))

	_, err := f.registry.Get(status.ID)
	assert.ErrorIs(t, err, ErrTimerNotFound)

	records, err := f.repo.ListTimers()
	require.NoError(t, err)
	assert.Empty(t, records)

	// A deleted timer's callbacks no longer reach the bus.
	f.clock.Advance(time.Second)
	assert.Zero(t, f.bus.EventCount(domain.TimerTicked))
}

func TestRegistry_ListIsOrdered(t *testing.T) {
	f := newRegistryFixture(t)
	f.create(t, "first", time.Second)
	time.Sleep(2 * time.Millisecond)
	f.create(t, "second", time.Second)

	list := f.registry.List()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
}

func TestRegistry_LoadRestoresIdleTimers(t *testing.T) {
	f := newRegistryFixture(t)
	begin := registryEpoch.Add(time.Hour)
	status, err := f.registry.Create(TimerDefinition{Name: "later", Duration: time.Minute, Continue: true, BeginTime: begin})
	require.NoError(t, err)
	_, _ = f.registry.Start(status.ID)

	reloaded := NewTimerRegistry(f.repo, testutil.NewMockEventBus(), f.clock)
	require.NoError(t, reloaded.Load())

	got, err := reloaded.Get(status.ID)
	require.NoError(t, err)
	assert.Equal(t, "later", got.Name)
	assert.True(t, got.Continue)
	require.NotNil(t, got.BeginTime)
	assert.True(t, got.BeginTime.Equal(begin))
	assert.Equal(t, "stable", got.State)

	// Loading twice does not duplicate.
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 1, reloaded.Count())
}

func TestRegistry_EnsurePresets(t *testing.T) {
	f := newRegistryFixture(t)
	f.create(t, "tea", time.Minute)

	presets := []config.Preset{
		{Name: "tea", Duration: config.Duration(2 * time.Minute)},
		{Name: "pomodoro", Duration: config.Duration(25 * time.Minute), Continue: true},
	}
	created, err := f.registry.EnsurePresets(presets)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 2, f.registry.Count())

	created, err = f.registry.EnsurePresets(presets)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestRegistry_NotifyTarget(t *testing.T) {
	f := newRegistryFixture(t)
	status, err := f.registry.Create(TimerDefinition{Name: "tea", Duration: time.Second, NotifyURL: "discord://token@123"})
	require.NoError(t, err)

	name, url, ok := f.registry.NotifyTarget(status.ID)
	assert.True(t, ok)
	assert.Equal(t, "tea", name)
	assert.Equal(t, "discord://token@123", url)

	_, _, ok = f.registry.NotifyTarget("missing")
	assert.False(t, ok)
}

func TestRegistry_ShutdownStopsSilently(t *testing.T) {
	f := newRegistryFixture(t)
	status := f.create(t, "tea", time.Second)
	_, _ = f.registry.Start(status.ID)
	before := len(f.bus.Types())

	f.registry.Shutdown()

	assert.Zero(t, f.clock.PendingCount())
	assert.Len(t, f.bus.Types(), before)
}
