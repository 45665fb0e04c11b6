package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mescon/tickr/internal/api"
	"github.com/mescon/tickr/internal/auth"
	"github.com/mescon/tickr/internal/clock"
	"github.com/mescon/tickr/internal/config"
	"github.com/mescon/tickr/internal/crypto"
	"github.com/mescon/tickr/internal/db"
	"github.com/mescon/tickr/internal/eventbus"
	"github.com/mescon/tickr/internal/logger"
	"github.com/mescon/tickr/internal/metrics"
	"github.com/mescon/tickr/internal/notifier"
	"github.com/mescon/tickr/internal/services"
)

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (TICKR_*)
	flagPort := flag.String("port", "", "HTTP server port (env: TICKR_PORT, default: 3095)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: TICKR_LOG_LEVEL, default: info)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: TICKR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: TICKR_DATABASE_PATH)")
	flagLogDir := flag.String("log-dir", "", "Log directory (env: TICKR_LOG_DIR)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep timer events, 0 to disable pruning (env: TICKR_RETENTION_DAYS, default: 30)")
	flagMaintenance := flag.String("maintenance-schedule", "", "Cron expression for database maintenance (env: TICKR_MAINTENANCE_SCHEDULE, default: @daily)")
	flagPresets := flag.String("presets", "", "YAML file of timers created at startup (env: TICKR_PRESETS_FILE)")
	flagNotifyThrottle := flag.Duration("notify-throttle", 0, "Minimum gap between notifications of one timer (env: TICKR_NOTIFY_THROTTLE, default: 30s)")
	flagClockScale := flag.Float64("clock-scale", 0, "Run every timer this many times faster than real time (env: TICKR_CLOCK_SCALE, default: 1)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Tickr %s\n", config.Version)
		os.Exit(0)
	}

	config.Load()

	flagOverrides := config.FlagOverrides{
		Port:                flagPort,
		LogLevel:            flagLogLevel,
		DataDir:             flagDataDir,
		DatabasePath:        flagDatabasePath,
		LogDir:              flagLogDir,
		MaintenanceSchedule: flagMaintenance,
		PresetsFile:         flagPresets,
		NotifyThrottle:      flagNotifyThrottle,
		ClockScale:          flagClockScale,
	}
	// -1 means not set (use default), 0 means disable
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)
	cfg := config.Get()

	if err := logger.Init(cfg.LogDir); err != nil {
		logger.Errorf("Failed to open log file, logging to stdout only: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Tickr %s...", config.Version)
	logger.Infof("========================================")

	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Log Directory: %s", cfg.LogDir)
	logger.Infof("  Presets: %s", cfg.PresetsFile)
	logger.Infof("  Notification Throttle: %s", cfg.NotifyThrottle)
	logger.Infof("  API Rate Limit: %.1f req/s (burst: %d)", cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Event Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Event Retention: disabled (no automatic pruning)")
	}
	if cfg.ClockScale != 1 {
		logger.Warnf("  Clock Scale: %.2fx (timers do not run in real time)", cfg.ClockScale)
	}
	if !crypto.EncryptionEnabled() {
		logger.Warnf("  Encryption: disabled (set TICKR_ENCRYPTION_KEY to encrypt notify URLs and the API key)")
	}

	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Database initialized successfully")

	eb := eventbus.NewEventBus(repo.DB)
	logger.Infof("✓ Event Bus initialized")

	var clk clock.Clock = clock.NewRealClock()
	if cfg.ClockScale != 1 {
		clk = clock.NewScaledClock(cfg.ClockScale)
	}

	// Record timers that were running when the previous process exited,
	// before new events for them can be published.
	recovered, err := services.NewRecoveryService(repo.DB, eb, clk).Run()
	if err != nil {
		logger.Errorf("Failed to recover interrupted timers: %v", err)
	} else if recovered > 0 {
		logger.Infof("✓ Marked %d interrupted timers as stopped", recovered)
	}

	registry := services.NewTimerRegistry(repo, eb, clk)
	if err := registry.Load(); err != nil {
		logger.Errorf("Failed to load timers: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Loaded %d timers", registry.Count())

	presets, err := config.LoadPresets(cfg.PresetsFile)
	if err != nil {
		logger.Errorf("Failed to load presets: %v", err)
	} else if created, err := registry.EnsurePresets(presets); err != nil {
		logger.Errorf("Failed to create preset timers: %v", err)
	} else if created > 0 {
		logger.Infof("✓ Created %d preset timers", created)
	}

	schedulerService := services.NewSchedulerService(registry, repo, services.SchedulerConfig{
		MaintenanceSchedule: cfg.MaintenanceSchedule,
		RetentionDays:       cfg.RetentionDays,
	})
	schedulerService.Subscribe(eb)
	if err := schedulerService.Start(); err != nil {
		logger.Errorf("Failed to start scheduler: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Scheduler Service (cron-based starts and maintenance)")

	notifierService := notifier.NewNotifier(eb, registry, cfg.NotifyThrottle)
	notifierService.Start()
	logger.Infof("✓ Notification Service")

	metricsService := metrics.NewMetricsService(eb, registry)
	metricsService.Start()
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	apiKey, err := auth.EnsureAPIKey(repo, cfg.APIKey)
	if err != nil {
		logger.Errorf("Failed to set up API key: %v", err)
		os.Exit(1)
	}

	apiServer := api.NewRESTServer(api.ServerDeps{
		Config:    cfg,
		Repo:      repo,
		EventBus:  eb,
		Registry:  registry,
		Scheduler: schedulerService,
		Metrics:   metricsService,
		APIKey:    apiKey,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Tickr %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	logger.Infof("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	schedulerService.Stop()
	logger.Infof("✓ Scheduler Service stopped")

	// Running timers are dropped silently; the next start records them as interrupted.
	registry.Shutdown()
	logger.Infof("✓ Timers stopped")

	notifierService.Stop()
	logger.Infof("✓ Notification Service stopped")

	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("✓ Tickr shutdown complete")
	_ = logger.Close()
}
