package db

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql

	"github.com/mescon/tickr/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository provides database access methods for the application.
type Repository struct {
	DB *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath and applies
// pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows concurrent readers and one writer; a small pool keeps lock
	// contention low.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := configureSQLite(db); err != nil {
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := &Repository{DB: db}
	if err := repo.checkIntegrity(); err != nil {
		// Non-fatal but logged - database may need attention
		logger.Errorf("Warning: database integrity check failed: %v", err)
	}

	return repo, nil
}

// configureSQLite sets optimal SQLite pragmas for reliability and performance
func configureSQLite(db *sql.DB) error {
	criticalPragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	}
	for _, pragma := range criticalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set critical pragma %s: %w", pragma, err)
		}
	}

	optionalPragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range optionalPragmas {
		if _, err := db.Exec(pragma); err != nil {
			logger.Debugf("Failed to set optional pragma %s: %v", pragma, err)
		}
	}

	return nil
}

// checkIntegrity runs a quick integrity check on the database
func (r *Repository) checkIntegrity() error {
	var result string
	if err := r.DB.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	logger.Debugf("Database integrity check passed")
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.DB.Close()
}

// GracefulClose checkpoints the WAL into the main file and closes the database.
func (r *Repository) GracefulClose() error {
	if _, err := r.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warnf("Shutdown WAL checkpoint failed: %v", err)
	}
	if err := r.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// RunMaintenance prunes events older than retentionDays (0 keeps everything)
// and reclaims free pages.
func (r *Repository) RunMaintenance(retentionDays int) error {
	logger.Infof("Starting database maintenance...")

	if retentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		res, err := ExecWithRetry(r.DB, "DELETE FROM events WHERE created_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune old events: %w", err)
		}
		if deleted, _ := res.RowsAffected(); deleted > 0 {
			logger.Infof("Pruned %d old events", deleted)
		}
	}

	for _, stmt := range []string{"PRAGMA incremental_vacuum", "PRAGMA wal_checkpoint(TRUNCATE)"} {
		if _, err := r.DB.Exec(stmt); err != nil {
			logger.Debugf("%s failed (might not be applicable): %v", stmt, err)
		}
	}

	logger.Infof("Database maintenance completed")
	return nil
}

// GetSetting returns the value stored under key, or "" and false.
func (r *Repository) GetSetting(key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a setting.
func (r *Repository) SetSetting(key, value string) error {
	_, err := ExecWithRetry(r.DB, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// Migrations
// =============================================================================

// Migrate applies every embedded migration newer than the recorded version.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	files, err := getMigrationFiles()
	if err != nil {
		return err
	}

	for _, file := range files {
		version, ok := parseMigrationVersion(file)
		if !ok {
			logger.Errorf("Skipping invalid migration file: %s", file)
			continue
		}
		if version <= currentVersion {
			continue
		}

		logger.Infof("Applying migration: %s", file)
		if err := applyMigration(db, file, version); err != nil {
			return err
		}
	}
	return nil
}

// getMigrationFiles returns sorted SQL migration files from the embedded filesystem.
func getMigrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// parseMigrationVersion extracts the version number from a migration filename.
func parseMigrationVersion(file string) (int, bool) {
	var version int
	if _, err := fmt.Sscanf(file, "%d_", &version); err != nil {
		return 0, false
	}
	return version, true
}

// applyMigration executes a single migration file within a transaction.
func applyMigration(db *sql.DB, file string, version int) error {
	content, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", file, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", file, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration version %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", file, err)
	}
	tx = nil // prevent deferred rollback after successful commit
	return nil
}
