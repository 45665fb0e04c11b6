package testutil

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/mescon/tickr/internal/db"
)

var testDBCounter atomic.Int64

// NewTestDB creates a private in-memory SQLite database with the tickr schema.
// Returns a database handle that should be closed by the caller.
func NewTestDB() (*sql.DB, error) {
	dsn := fmt.Sprintf("file:tickrtest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A single connection keeps every query on the same in-memory database.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}
	if err := db.Migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return conn, nil
}

// NewTestRepository wraps NewTestDB in a Repository closed at test cleanup.
func NewTestRepository(t testing.TB) *db.Repository {
	t.Helper()
	conn, err := NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &db.Repository{DB: conn}
}
