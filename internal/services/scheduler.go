package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/domain"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
)

// SchedulerConfig controls the maintenance job.
type SchedulerConfig struct {
	MaintenanceSchedule string // empty disables maintenance
	RetentionDays       int
}

// SchedulerService starts timers on their begin_cron schedule and runs
// periodic database maintenance.
type SchedulerService struct {
	registry *TimerRegistry
	repo     *db.Repository
	cfg      SchedulerConfig
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	mu       sync.Mutex
}

func NewSchedulerService(registry *TimerRegistry, repo *db.Repository, cfg SchedulerConfig) *SchedulerService {
	return &SchedulerService{
		registry: registry,
		repo:     repo,
		cfg:      cfg,
		cron:     cron.New(),
		jobs:     make(map[string]cron.EntryID),
	}
}

// Start schedules every registered timer that has a begin_cron and the
// maintenance job, then starts the cron runner.
func (s *SchedulerService) Start() error {
	logger.Infof("Starting Scheduler Service...")

	if err := s.scheduleMaintenance(); err != nil {
		return err
	}

	count := 0
	for _, status := range s.registry.List() {
		if status.BeginCron == "" {
			continue
		}
		if err := s.AddTimer(status.ID, status.BeginCron); err != nil {
			logger.Errorf("Failed to schedule timer %s: %v", status.Name, err)
			continue
		}
		count++
	}
	logger.Infof("Loaded %d scheduled timers", count)

	s.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for running jobs.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

// Subscribe keeps cron jobs in step with timers created and deleted at runtime.
func (s *SchedulerService) Subscribe(eb eventbus.Publisher) {
	eb.Subscribe(domain.TimerCreated, func(e domain.Event) {
		expr := e.GetStringOr("begin_cron", "")
		if expr == "" {
			return
		}
		if err := s.AddTimer(e.AggregateID, expr); err != nil {
			logger.Errorf("Failed to schedule timer %s: %v", e.AggregateID, err)
		}
	})
	eb.Subscribe(domain.TimerDeleted, func(e domain.Event) {
		s.RemoveTimer(e.AggregateID)
	})
}

func (s *SchedulerService) scheduleMaintenance() error {
	expr := strings.TrimSpace(s.cfg.MaintenanceSchedule)
	if expr == "" {
		logger.Infof("Database maintenance schedule disabled")
		return nil
	}
	_, err := s.cron.AddFunc(expr, s.runMaintenance)
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", expr, err)
	}
	return nil
}

func (s *SchedulerService) runMaintenance() {
	if err := s.repo.RunMaintenance(s.cfg.RetentionDays); err != nil {
		logger.Errorf("Scheduled database maintenance failed: %v", err)
	}
}

// AddTimer (re)schedules a timer to be started at every match of cronExpr.
func (s *SchedulerService) AddTimer(timerID, cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobs[timerID]; ok {
		s.cron.Remove(entryID)
	}
	entryID, err := s.cron.AddFunc(cronExpr, func() { s.fire(timerID) })
	if err != nil {
		return err
	}
	s.jobs[timerID] = entryID
	return nil
}

func (s *SchedulerService) fire(timerID string) {
	status, err := s.registry.Start(timerID)
	if err != nil {
		logger.Warnf("Scheduled start of timer %s failed: %v", timerID, err)
		return
	}
	logger.Infof("Scheduled start of timer %s (state: %s)", status.Name, status.State)
}

// RemoveTimer drops the cron job of a timer, if any.
func (s *SchedulerService) RemoveTimer(timerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[timerID]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, timerID)
	}
}

// NextRun returns when the timer will next be started by cron. It is only
// known once the scheduler is running.
func (s *SchedulerService) NextRun(timerID string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.jobs[timerID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(entryID).Next
	return next, !next.IsZero()
}

// ScheduledCount returns the number of timers with a cron job.
func (s *SchedulerService) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
