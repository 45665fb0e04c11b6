package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mescon/tickr/internal/logger"
)

// MaxRetries is the number of times to retry a database operation on SQLITE_BUSY
const MaxRetries = 5

// RetryDelay is the base delay between retries (increases exponentially)
const RetryDelay = 100 * time.Millisecond

// isBusy reports whether err is SQLite's "database is locked" condition.
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs op until it succeeds, fails with a non-busy error, or runs out
// of attempts. Backoff doubles from RetryDelay: 100ms, 200ms, 400ms, 800ms.
func withRetry[T any](what string, op func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		result, err = op()
		if err == nil {
			return result, nil
		}
		if !isBusy(err) {
			return result, err
		}
		if attempt < MaxRetries-1 {
			delay := RetryDelay * time.Duration(1<<attempt)
			logger.Debugf("Database busy on %s, retrying in %v (attempt %d/%d)", what, delay, attempt+1, MaxRetries)
			time.Sleep(delay)
		}
	}

	var zero T
	return zero, fmt.Errorf("database busy after %d retries: %w", MaxRetries, err)
}

// ExecWithRetry executes a SQL statement, retrying while SQLite reports busy.
func ExecWithRetry(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	return withRetry("exec", func() (sql.Result, error) {
		return db.Exec(query, args...)
	})
}

// QueryWithRetry executes a query, retrying while SQLite reports busy.
func QueryWithRetry(db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	return withRetry("query", func() (*sql.Rows, error) {
		return db.Query(query, args...)
	})
}
