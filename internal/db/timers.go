package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mescon/tickr/internal/crypto"
	"github.com/mescon/tickr/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// TimerRecord is a stored timer definition. Runtime state is never stored.
type TimerRecord struct {
	ID        string
	Name      string
	Duration  time.Duration
	Continue  bool
	BeginTime time.Time // zero when unset
	BeginCron string
	NotifyURL string // plaintext; encrypted at rest
	CreatedAt time.Time
}

// InsertTimer stores a new definition.
func (r *Repository) InsertTimer(rec TimerRecord) error {
	notifyURL, err := crypto.Encrypt(rec.NotifyURL)
	if err != nil {
		return fmt.Errorf("failed to encrypt notify url: %w", err)
	}

	var beginMS sql.NullInt64
	if !rec.BeginTime.IsZero() {
		beginMS = sql.NullInt64{Int64: rec.BeginTime.UnixMilli(), Valid: true}
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = ExecWithRetry(r.DB, `
		INSERT INTO timers (id, name, duration_ms, continue_mode, begin_time_ms, begin_cron, notify_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Name, rec.Duration.Milliseconds(), rec.Continue, beginMS, rec.BeginCron, notifyURL, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert timer %s: %w", rec.Name, err)
	}
	return nil
}

// DeleteTimer removes a definition. Its event history is kept until pruned.
func (r *Repository) DeleteTimer(id string) error {
	res, err := ExecWithRetry(r.DB, "DELETE FROM timers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete timer %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTimers returns every stored definition, oldest first.
func (r *Repository) ListTimers() ([]TimerRecord, error) {
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, name, duration_ms, continue_mode, begin_time_ms, begin_cron, notify_url, created_at
		FROM timers ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list timers: %w", err)
	}
	defer rows.Close()

	var records []TimerRecord
	for rows.Next() {
		var rec TimerRecord
		var durationMS int64
		var beginMS sql.NullInt64
		var notifyURL string
		if err := rows.Scan(&rec.ID, &rec.Name, &durationMS, &rec.Continue, &beginMS, &rec.BeginCron, &notifyURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		if beginMS.Valid {
			rec.BeginTime = time.UnixMilli(beginMS.Int64)
		}
		if rec.NotifyURL, err = crypto.Decrypt(notifyURL); err != nil {
			return nil, fmt.Errorf("failed to decrypt notify url of timer %s: %w", rec.Name, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListEvents returns the most recent events of one aggregate, newest first.
func (r *Repository) ListEvents(aggregateID string, limit int) ([]domain.Event, error) {
	return r.ListEventsPage(aggregateID, limit, 0)
}

// ListEventsPage is ListEvents skipping the offset newest events.
func (r *Repository) ListEventsPage(aggregateID string, limit, offset int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := QueryWithRetry(r.DB, `
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at
		FROM events WHERE aggregate_id = ? ORDER BY id DESC LIMIT ? OFFSET ?
	`, aggregateID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		var data string
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &data, &e.EventVersion, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &e.EventData); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", e.ID, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEvents returns how many events are stored for one aggregate.
func (r *Repository) CountEvents(aggregateID string) (int, error) {
	var n int
	if err := r.DB.QueryRow("SELECT COUNT(*) FROM events WHERE aggregate_id = ?", aggregateID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
