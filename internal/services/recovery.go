package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mescon/tickr/internal/clock"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
)

// recoveryQueryTimeout is the maximum time for database queries in recovery service.
const recoveryQueryTimeout = 30 * time.Second

// ReasonInterrupted marks a TimerStopped event recorded for a timer that was
// cut short by a restart.
const ReasonInterrupted = "interrupted"

// RecoveryService reconciles the event history on startup. Timer runtime state
// is not persisted, so a timer that was counting or paused when the process
// exited comes back idle; this records a TimerStopped for it so its history
// does not end mid-cycle.
type RecoveryService struct {
	db       *sql.DB
	eventBus eventbus.Publisher
	clock    clock.Clock
}

// NewRecoveryService creates a new recovery service.
func NewRecoveryService(db *sql.DB, eb eventbus.Publisher, clk clock.Clock) *RecoveryService {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &RecoveryService{db: db, eventBus: eb, clock: clk}
}

type interruptedTimer struct {
	ID        string
	Name      string
	LastEvent domain.EventType
}

// Run records every interrupted timer and returns how many were found.
// Call it before any timer is started.
func (r *RecoveryService) Run() (int, error) {
	items, err := r.findInterrupted()
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	recorded := 0
	for _, item := range items {
		data := domain.LifecycleEventData{Name: item.Name, At: now.UnixMilli()}.Map()
		data["reason"] = ReasonInterrupted
		data["last_event"] = string(item.LastEvent)

		if err := r.eventBus.Publish(domain.Event{
			AggregateType: domain.AggregateTimer,
			AggregateID:   item.ID,
			EventType:     domain.TimerStopped,
			EventData:     data,
		}); err != nil {
			logger.Warnf("Recovery: failed to record interruption of %s: %v", item.Name, err)
			continue
		}
		recorded++
		logger.Infof("Recovery: timer %s was interrupted (last event %s)", item.Name, item.LastEvent)
	}
	return recorded, nil
}

// findInterrupted returns timers whose latest lifecycle event leaves them
// counting or paused.
func (r *RecoveryService) findInterrupted() ([]interruptedTimer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), recoveryQueryTimeout)
	defer cancel()

	placeholders := make([]string, len(domain.LifecycleEventTypes))
	args := make([]interface{}, 0, 2*len(domain.LifecycleEventTypes))
	for i, t := range domain.LifecycleEventTypes {
		placeholders[i] = "?"
		args = append(args, string(t))
	}
	for _, t := range domain.LifecycleEventTypes {
		args = append(args, string(t))
	}
	in := strings.Join(placeholders, ", ")

	query := fmt.Sprintf(`
		SELECT e.aggregate_id, t.name, t.continue_mode, e.event_type,
			COALESCE(json_extract(e.event_data, '$.remaining_ms'), 0)
		FROM events e
		JOIN timers t ON t.id = e.aggregate_id
		WHERE e.event_type IN (%s)
		AND NOT EXISTS (
			SELECT 1 FROM events e2
			WHERE e2.aggregate_id = e.aggregate_id
			AND e2.event_type IN (%s)
			AND e2.id > e.id
		)
		ORDER BY e.id ASC
	`, in, in)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer history: %w", err)
	}
	defer rows.Close()

	var items []interruptedTimer
	for rows.Next() {
		var item interruptedTimer
		var continueMode bool
		var remainingMS int64
		if err := rows.Scan(&item.ID, &item.Name, &continueMode, &item.LastEvent, &remainingMS); err != nil {
			logger.Warnf("Recovery: failed to scan timer history: %v", err)
			continue
		}
		if wasActive(item.LastEvent, continueMode, remainingMS) {
			items = append(items, item)
		}
	}
	return items, rows.Err()
}

// wasActive reports whether a timer whose latest lifecycle event is last was
// still counting or paused. A pause that landed on the deadline records zero
// remaining and leaves the timer idle.
func wasActive(last domain.EventType, continueMode bool, remainingMS int64) bool {
	switch last {
	case domain.TimerStarted, domain.TimerResumed:
		return true
	case domain.TimerPaused:
		return remainingMS > 0
	case domain.TimerTicked:
		return continueMode
	default:
		return false
	}
}
