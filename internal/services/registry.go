package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mescon/tickr/internal/clock"
	"github.com/mescon/tickr/internal/config"
	"github.com/mescon/tickr/internal/countdown"
	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
	"github.com/mescon/tickr/internal/notifier"
)

var (
	// ErrTimerNotFound is returned for an unknown timer id.
	ErrTimerNotFound = errors.New("timer not found")
	// ErrInvalidDefinition wraps every validation failure of a new timer.
	ErrInvalidDefinition = errors.New("invalid timer definition")
	// ErrDuplicateName is returned when a timer name is already taken.
	ErrDuplicateName = errors.New("timer name already exists")
)

// lifecycleTypes maps countdown events onto the domain events they publish.
var lifecycleTypes = map[countdown.EventKind]domain.EventType{
	countdown.EventStart:  domain.TimerStarted,
	countdown.EventPause:  domain.TimerPaused,
	countdown.EventResume: domain.TimerResumed,
	countdown.EventStop:   domain.TimerStopped,
	countdown.EventReset:  domain.TimerReset,
	countdown.EventTick:   domain.TimerTicked,
}

// TimerDefinition describes a timer to create.
type TimerDefinition struct {
	Name      string
	Duration  time.Duration
	Continue  bool
	BeginTime time.Time
	BeginCron string
	NotifyURL string
}

// TimerStatus is the externally visible view of one timer.
type TimerStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DurationMS  int64      `json:"duration_ms"`
	Continue    bool       `json:"continue"`
	BeginTime   *time.Time `json:"begin_time,omitempty"`
	BeginCron   string     `json:"begin_cron,omitempty"`
	Notify      bool       `json:"notify"`
	State       string     `json:"state"`
	RemainingMS int64      `json:"remaining_ms"`
	Counting    bool       `json:"counting"`
	Paused      bool       `json:"paused"`
	Stopped     bool       `json:"stopped"`
	CreatedAt   time.Time  `json:"created_at"`
}

type registryEntry struct {
	record db.TimerRecord
	timer  *countdown.Timer
	detach func()
}

// TimerRegistry owns every named timer of the service and records their
// lifecycle on the event bus.
type TimerRegistry struct {
	repo  *db.Repository
	bus   eventbus.Publisher
	clock clock.Clock

	mu     sync.RWMutex
	timers map[string]*registryEntry
}

// NewTimerRegistry creates an empty registry. A nil clock selects real time.
func NewTimerRegistry(repo *db.Repository, bus eventbus.Publisher, clk clock.Clock) *TimerRegistry {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &TimerRegistry{
		repo:   repo,
		bus:    bus,
		clock:  clk,
		timers: make(map[string]*registryEntry),
	}
}

// Load registers every stored definition. Timers come back idle.
func (r *TimerRegistry) Load() error {
	records, err := r.repo.ListTimers()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, exists := r.timers[rec.ID]; exists {
			continue
		}
		entry, err := r.newEntry(rec)
		if err != nil {
			logger.Errorf("Skipping stored timer %s: %v", rec.Name, err)
			continue
		}
		r.timers[rec.ID] = entry
	}
	logger.Infof("Loaded %d timers", len(r.timers))
	return nil
}

// EnsurePresets creates every preset whose name is not registered yet.
func (r *TimerRegistry) EnsurePresets(presets []config.Preset) (int, error) {
	created := 0
	for _, p := range presets {
		if _, ok := r.findByName(p.Name); ok {
			continue
		}
		_, err := r.Create(TimerDefinition{
			Name:      p.Name,
			Duration:  time.Duration(p.Duration),
			Continue:  p.Continue,
			BeginTime: p.BeginTime,
			BeginCron: p.BeginCron,
			NotifyURL: p.NotifyURL,
		})
		if err != nil {
			return created, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		created++
	}
	if created > 0 {
		logger.Infof("Created %d timers from presets", created)
	}
	return created, nil
}

// Create validates and stores a definition, then registers an idle timer.
func (r *TimerRegistry) Create(def TimerDefinition) (TimerStatus, error) {
	def.Name = strings.TrimSpace(def.Name)
	if err := validateDefinition(&def); err != nil {
		return TimerStatus{}, err
	}

	r.mu.Lock()
	for _, e := range r.timers {
		if e.record.Name == def.Name {
			r.mu.Unlock()
			return TimerStatus{}, fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
		}
	}

	rec := db.TimerRecord{
		ID:        uuid.New().String(),
		Name:      def.Name,
		Duration:  def.Duration,
		Continue:  def.Continue,
		BeginTime: def.BeginTime,
		BeginCron: def.BeginCron,
		NotifyURL: def.NotifyURL,
		CreatedAt: time.Now().UTC(),
	}
	entry, err := r.newEntry(rec)
	if err != nil {
		r.mu.Unlock()
		return TimerStatus{}, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if err := r.repo.InsertTimer(rec); err != nil {
		r.mu.Unlock()
		entry.detach()
		return TimerStatus{}, err
	}
	r.timers[rec.ID] = entry
	status := entry.status()
	r.mu.Unlock()

	r.publish(domain.Event{
		AggregateID: rec.ID,
		EventType:   domain.TimerCreated,
		EventData: map[string]interface{}{
			"name":        rec.Name,
			"duration_ms": rec.Duration.Milliseconds(),
			"continue":    rec.Continue,
			"begin_cron":  rec.BeginCron,
		},
	})
	logger.Infof("Created timer %s (%s, %v)", rec.Name, rec.ID, rec.Duration)
	return status, nil
}

func validateDefinition(def *TimerDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(def.Name) > 128 {
		return fmt.Errorf("%w: name longer than 128 characters", ErrInvalidDefinition)
	}
	def.Duration = def.Duration.Truncate(time.Millisecond)
	if def.Duration <= 0 {
		return fmt.Errorf("%w: duration must be at least 1ms", ErrInvalidDefinition)
	}
	def.BeginCron = strings.TrimSpace(def.BeginCron)
	if def.BeginCron != "" {
		if _, err := cron.ParseStandard(def.BeginCron); err != nil {
			return fmt.Errorf("%w: invalid begin_cron: %v", ErrInvalidDefinition, err)
		}
	}
	if def.NotifyURL != "" {
		normalized, err := notifier.NormalizeURL(def.NotifyURL)
		if err != nil {
			return fmt.Errorf("%w: invalid notify_url: %v", ErrInvalidDefinition, err)
		}
		def.NotifyURL = normalized
	}
	return nil
}

// newEntry builds the countdown timer for rec and bridges its events onto the
// bus. Callers hold r.mu.
func (r *TimerRegistry) newEntry(rec db.TimerRecord) (*registryEntry, error) {
	timer, err := countdown.New(rec.Duration, countdown.Options{
		Continue:  rec.Continue,
		BeginTime: rec.BeginTime,
		Clock:     r.clock,
	})
	if err != nil {
		return nil, err
	}

	id, name := rec.ID, rec.Name
	detach := timer.OnEvent(func(e countdown.Event) {
		eventType, ok := lifecycleTypes[e.Kind]
		if !ok {
			return
		}
		r.publish(domain.Event{
			AggregateID: id,
			EventType:   eventType,
			EventData: domain.LifecycleEventData{
				Name:        name,
				RemainingMS: e.Remaining.Milliseconds(),
				At:          e.At.UnixMilli(),
			}.Map(),
		})
	})
	return &registryEntry{record: rec, timer: timer, detach: detach}, nil
}

func (r *TimerRegistry) publish(event domain.Event) {
	event.AggregateType = domain.AggregateTimer
	if err := r.bus.Publish(event); err != nil {
		logger.Errorf("Failed to publish %s for timer %s: %v", event.EventType, event.AggregateID, err)
	}
}

func (e *registryEntry) status() TimerStatus {
	snap := e.timer.Snapshot()
	s := TimerStatus{
		ID:          e.record.ID,
		Name:        e.record.Name,
		DurationMS:  e.record.Duration.Milliseconds(),
		Continue:    e.record.Continue,
		BeginCron:   e.record.BeginCron,
		Notify:      e.record.NotifyURL != "",
		State:       snap.State.String(),
		RemainingMS: snap.Remaining.Milliseconds(),
		Counting:    snap.Counting,
		Paused:      snap.Paused,
		Stopped:     snap.Stopped,
		CreatedAt:   e.record.CreatedAt,
	}
	if !e.record.BeginTime.IsZero() {
		bt := e.record.BeginTime.UTC()
		s.BeginTime = &bt
	}
	return s
}

func (r *TimerRegistry) get(id string) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.timers[id]
	if !ok {
		return nil, ErrTimerNotFound
	}
	return entry, nil
}

func (r *TimerRegistry) findByName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.timers {
		if e.record.Name == name {
			return id, true
		}
	}
	return "", false
}

// Get returns the status of one timer.
func (r *TimerRegistry) Get(id string) (TimerStatus, error) {
	entry, err := r.get(id)
	if err != nil {
		return TimerStatus{}, err
	}
	return entry.status(), nil
}

// Status is Get under the name used by the control endpoints.
func (r *TimerRegistry) Status(id string) (TimerStatus, error) {
	return r.Get(id)
}

// List returns every timer, oldest first.
func (r *TimerRegistry) List() []TimerStatus {
	r.mu.RLock()
	entries := make([]*registryEntry, 0, len(r.timers))
	for _, e := range r.timers {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].record, entries[j].record
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Name < b.Name
	})

	statuses := make([]TimerStatus, len(entries))
	for i, e := range entries {
		statuses[i] = e.status()
	}
	return statuses
}

// Definition returns the stored definition of one timer.
func (r *TimerRegistry) Definition(id string) (db.TimerRecord, error) {
	entry, err := r.get(id)
	if err != nil {
		return db.TimerRecord{}, err
	}
	return entry.record, nil
}

// NotifyTarget implements notifier.TimerLookup.
func (r *TimerRegistry) NotifyTarget(id string) (string, string, bool) {
	entry, err := r.get(id)
	if err != nil {
		return "", "", false
	}
	return entry.record.Name, entry.record.NotifyURL, true
}

// Delete stops the timer, removes it and its definition. History is kept.
func (r *TimerRegistry) Delete(id string) error {
	r.mu.Lock()
	entry, ok := r.timers[id]
	if !ok {
		r.mu.Unlock()
		return ErrTimerNotFound
	}
	delete(r.timers, id)
	r.mu.Unlock()

	entry.timer.Stop()
	entry.detach()

	if err := r.repo.DeleteTimer(id); err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	r.publish(domain.Event{
		AggregateID: id,
		EventType:   domain.TimerDeleted,
		EventData:   map[string]interface{}{"name": entry.record.Name},
	})
	logger.Infof("Deleted timer %s (%s)", entry.record.Name, id)
	return nil
}

func (r *TimerRegistry) control(id string, op func(*countdown.Timer)) (TimerStatus, error) {
	entry, err := r.get(id)
	if err != nil {
		return TimerStatus{}, err
	}
	op(entry.timer)
	return entry.status(), nil
}

// Start starts (or arms) a timer. Starting a counting timer changes nothing.
func (r *TimerRegistry) Start(id string) (TimerStatus, error) {
	return r.control(id, (*countdown.Timer).Start)
}

// Pause pauses a counting timer.
func (r *TimerRegistry) Pause(id string) (TimerStatus, error) {
	return r.control(id, (*countdown.Timer).Pause)
}

// Resume resumes a paused timer.
func (r *TimerRegistry) Resume(id string) (TimerStatus, error) {
	return r.control(id, (*countdown.Timer).Resume)
}

// Stop stops a timer and discards leftover time.
func (r *TimerRegistry) Stop(id string) (TimerStatus, error) {
	return r.control(id, (*countdown.Timer).Stop)
}

// Reset is Stop recorded as TimerReset, for older clients.
func (r *TimerRegistry) Reset(id string) (TimerStatus, error) {
	return r.control(id, (*countdown.Timer).Reset)
}

// Count returns the number of registered timers.
func (r *TimerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.timers)
}

// CountingCount returns the number of timers currently counting.
func (r *TimerRegistry) CountingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.timers {
		if e.timer.IsCounting() {
			n++
		}
	}
	return n
}

// Shutdown detaches every timer from the bus and stops it. Runtime state is
// not persisted, so nothing is recorded for timers cut short here.
func (r *TimerRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.timers {
		e.detach()
		e.timer.Stop()
	}
	logger.Infof("Timer registry shutdown complete (%d timers)", len(r.timers))
}
