package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP server listen port (default: 3095)
	Port string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// DataDir is the directory for persistent data (database, logs)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/tickr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string

	// APIKey protects the HTTP API. Empty means a key is generated on first
	// start and stored (encrypted when possible) in the settings table.
	APIKey string

	// CORSOrigin is the allowed browser origin (default: "*")
	CORSOrigin string

	// RetentionDays is the number of days to keep timer events (default: 30)
	// Set to 0 to disable automatic pruning
	RetentionDays int

	// MaintenanceSchedule is the cron expression for database maintenance (default: "@daily")
	// Empty disables scheduled maintenance
	MaintenanceSchedule string

	// PresetsFile is an optional YAML file of timers created at startup
	// Default: <DataDir>/presets.yaml, ignored when missing
	PresetsFile string

	// NotifyThrottle is the minimum gap between two notifications of one timer (default: 30s)
	NotifyThrottle time.Duration

	// ClockScale speeds up (>1) or slows down (<1) every timer; 1 is real time.
	// Intended for demos and manual testing.
	ClockScale float64

	// APIRateLimitRPS is the sustained request rate allowed per client (default: 20)
	APIRateLimitRPS float64

	// APIRateLimitBurst is the burst size above the sustained rate (default: 40)
	APIRateLimitBurst int
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	// Determine DataDir - this is where all persistent data lives
	dataDir := getEnvOrDefault("TICKR_DATA_DIR", "")
	if dataDir == "" {
		// Check if we're in Docker (has /config directory)
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else if execPath, err := os.Executable(); err == nil {
			dataDir = filepath.Join(filepath.Dir(execPath), "config")
		} else if cwd, err := os.Getwd(); err == nil {
			dataDir = filepath.Join(cwd, "config")
		} else {
			dataDir = "./config"
		}
	}
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}
	_ = os.MkdirAll(dataDir, 0755)

	dbPath := getEnvOrDefault("TICKR_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "tickr.db")
	}

	logDir := getEnvOrDefault("TICKR_LOG_DIR", "")
	if logDir == "" {
		logDir = filepath.Join(dataDir, "logs")
	}
	_ = os.MkdirAll(logDir, 0755)

	presets := getEnvOrDefault("TICKR_PRESETS_FILE", "")
	if presets == "" {
		presets = filepath.Join(dataDir, "presets.yaml")
	}

	cfg = &Config{
		Port:                getEnvOrDefault("TICKR_PORT", "3095"),
		LogLevel:            strings.ToLower(getEnvOrDefault("TICKR_LOG_LEVEL", "info")),
		DataDir:             dataDir,
		DatabasePath:        dbPath,
		LogDir:              logDir,
		APIKey:              getEnvOrDefault("TICKR_API_KEY", ""),
		CORSOrigin:          getEnvOrDefault("TICKR_CORS_ORIGIN", "*"),
		RetentionDays:       getEnvIntOrDefault("TICKR_RETENTION_DAYS", 30),
		MaintenanceSchedule: os.Getenv("TICKR_MAINTENANCE_SCHEDULE"),
		PresetsFile:         presets,
		NotifyThrottle:      getEnvDurationOrDefault("TICKR_NOTIFY_THROTTLE", 30*time.Second),
		ClockScale:          getEnvFloatOrDefault("TICKR_CLOCK_SCALE", 1),
		APIRateLimitRPS:     getEnvFloatOrDefault("TICKR_API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:   getEnvIntOrDefault("TICKR_API_RATE_LIMIT_BURST", 40),
	}
	if _, set := os.LookupEnv("TICKR_MAINTENANCE_SCHEDULE"); !set {
		cfg.MaintenanceSchedule = "@daily"
	}

	cfg.normalize()
	return cfg
}

// normalize replaces invalid values with their defaults.
func (c *Config) normalize() {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
	}
	if c.ClockScale <= 0 {
		c.ClockScale = 1
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
	if c.NotifyThrottle < 0 {
		c.NotifyThrottle = 0
	}
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:                "8080",
		LogLevel:            "debug",
		DataDir:             "/tmp/tickr-test",
		DatabasePath:        "/tmp/tickr-test/tickr.db",
		LogDir:              "/tmp/tickr-test/logs",
		APIKey:              "test-api-key",
		CORSOrigin:          "*",
		RetentionDays:       30,
		MaintenanceSchedule: "@daily",
		PresetsFile:         "",
		NotifyThrottle:      30 * time.Second,
		ClockScale:          1,
		APIRateLimitRPS:     1000,
		APIRateLimitBurst:   1000,
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "30s", "5m", "72h".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvFloatOrDefault returns the environment variable as a float64 or the default if not set/invalid.
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port                *string
	LogLevel            *string
	DataDir             *string
	DatabasePath        *string
	LogDir              *string
	RetentionDays       *int
	MaintenanceSchedule *string
	PresetsFile         *string
	NotifyThrottle      *time.Duration
	ClockScale          *float64
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
	if flags.LogDir != nil && *flags.LogDir != "" {
		cfg.LogDir = *flags.LogDir
	}
	if flags.RetentionDays != nil && *flags.RetentionDays >= 0 {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.MaintenanceSchedule != nil && *flags.MaintenanceSchedule != "" {
		cfg.MaintenanceSchedule = *flags.MaintenanceSchedule
	}
	if flags.PresetsFile != nil && *flags.PresetsFile != "" {
		cfg.PresetsFile = *flags.PresetsFile
	}
	if flags.NotifyThrottle != nil && *flags.NotifyThrottle != 0 {
		cfg.NotifyThrottle = *flags.NotifyThrottle
	}
	if flags.ClockScale != nil && *flags.ClockScale != 0 {
		cfg.ClockScale = *flags.ClockScale
	}
	cfg.normalize()
}
