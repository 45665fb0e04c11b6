package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "tickr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func insertEvent(t *testing.T, repo *Repository, aggregateID, eventType string, createdAt time.Time) {
	t.Helper()
	_, err := repo.DB.Exec(`
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at)
		VALUES ('timer', ?, ?, '{"remaining_ms": 0}', 1, ?)
	`, aggregateID, eventType, createdAt.UTC())
	require.NoError(t, err)
}

// =============================================================================
// Migrations
// =============================================================================

func TestNewRepository_AppliesMigrations(t *testing.T) {
	repo := newTestRepository(t)

	var version int
	require.NoError(t, repo.DB.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 1, version)

	for _, table := range []string{"settings", "timers", "events"} {
		var name string
		err := repo.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, Migrate(repo.DB))

	var count int
	require.NoError(t, repo.DB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestParseMigrationVersion(t *testing.T) {
	v, ok := parseMigrationVersion("001_initial.sql")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = parseMigrationVersion("initial.sql")
	assert.False(t, ok)
}

// =============================================================================
// Settings
// =============================================================================

func TestSettings_Roundtrip(t *testing.T) {
	repo := newTestRepository(t)

	_, ok, err := repo.GetSetting("api_key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetSetting("api_key", "one"))
	require.NoError(t, repo.SetSetting("api_key", "two"))

	value, ok, err := repo.GetSetting("api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", value)
}

// =============================================================================
// Timers
// =============================================================================

func TestTimers_InsertListDelete(t *testing.T) {
	repo := newTestRepository(t)
	begin := time.UnixMilli(1_900_000_000_000)

	require.NoError(t, repo.InsertTimer(TimerRecord{
		ID:        "a",
		Name:      "tea",
		Duration:  3 * time.Minute,
		CreatedAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, repo.InsertTimer(TimerRecord{
		ID:        "b",
		Name:      "standup",
		Duration:  15 * time.Minute,
		Continue:  true,
		BeginTime: begin,
		BeginCron: "0 9 * * 1-5",
		NotifyURL: "generic://example.com/hook",
	}))

	records, err := repo.ListTimers()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "tea", records[0].Name)
	assert.Equal(t, 3*time.Minute, records[0].Duration)
	assert.True(t, records[0].BeginTime.IsZero())

	assert.Equal(t, "standup", records[1].Name)
	assert.True(t, records[1].Continue)
	assert.True(t, records[1].BeginTime.Equal(begin))
	assert.Equal(t, "0 9 * * 1-5", records[1].BeginCron)
	assert.Equal(t, "generic://example.com/hook", records[1].NotifyURL)

	require.NoError(t, repo.DeleteTimer("a"))
	assert.ErrorIs(t, repo.DeleteTimer("a"), ErrNotFound)

	records, err = repo.ListTimers()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTimers_DuplicateNameRejected(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.InsertTimer(TimerRecord{ID: "a", Name: "tea", Duration: time.Second}))
	assert.Error(t, repo.InsertTimer(TimerRecord{ID: "b", Name: "tea", Duration: time.Second}))
}

// =============================================================================
// Events & maintenance
// =============================================================================

func TestListEvents_NewestFirstWithLimit(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()
	insertEvent(t, repo, "t1", "TimerStarted", now)
	insertEvent(t, repo, "t1", "TimerPaused", now)
	insertEvent(t, repo, "t1", "TimerResumed", now)
	insertEvent(t, repo, "t2", "TimerStarted", now)

	events, err := repo.ListEvents("t1", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "TimerResumed", string(events[0].EventType))
	assert.Equal(t, "TimerPaused", string(events[1].EventType))
	assert.Equal(t, float64(0), events[0].EventData["remaining_ms"])
}

func TestListEvents_Empty(t *testing.T) {
	repo := newTestRepository(t)
	events, err := repo.ListEvents("missing", 10)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestListEventsPage_OffsetAndCount(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()
	insertEvent(t, repo, "t1", "TimerStarted", now)
	insertEvent(t, repo, "t1", "TimerPaused", now)
	insertEvent(t, repo, "t1", "TimerResumed", now)

	events, err := repo.ListEventsPage("t1", 2, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "TimerStarted", string(events[0].EventType))

	n, err := repo.CountEvents("t1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.CountEvents("missing")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunMaintenance_PrunesOldEvents(t *testing.T) {
	repo := newTestRepository(t)
	insertEvent(t, repo, "t1", "TimerStarted", time.Now().AddDate(0, 0, -40))
	insertEvent(t, repo, "t1", "TimerTicked", time.Now())

	require.NoError(t, repo.RunMaintenance(30))

	events, err := repo.ListEvents("t1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "TimerTicked", string(events[0].EventType))
}

func TestRunMaintenance_ZeroRetentionKeepsAll(t *testing.T) {
	repo := newTestRepository(t)
	insertEvent(t, repo, "t1", "TimerStarted", time.Now().AddDate(-1, 0, 0))

	require.NoError(t, repo.RunMaintenance(0))

	events, err := repo.ListEvents("t1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// =============================================================================
// Retry helpers
// =============================================================================

func TestIsBusy(t *testing.T) {
	assert.True(t, isBusy(errString("SQLITE_BUSY: database is locked")))
	assert.True(t, isBusy(errString("database is locked (5)")))
	assert.False(t, isBusy(errString("no such table: foo")))
}

func TestExecWithRetry_NonBusyErrorReturnsImmediately(t *testing.T) {
	repo := newTestRepository(t)
	start := time.Now()
	_, err := ExecWithRetry(repo.DB, "INSERT INTO nope VALUES (1)")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), RetryDelay)
}

type errString string

func (e errString) Error() string { return string(e) }
