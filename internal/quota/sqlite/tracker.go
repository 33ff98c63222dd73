// Package sqlite keeps the daily request ledger in a SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/quota"
)

const schema = `CREATE TABLE IF NOT EXISTS quota_usage (
	day TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
)`

// Tracker implements discovery.QuotaTracker on SQLite.
type Tracker struct {
	db    *sql.DB
	clock discovery.Clock
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, clock discovery.Clock) (*Tracker, error) {
	if path == "" {
		return nil, fmt.Errorf("quota database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating quota directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Tracker{db: db, clock: quota.ClockOrSystem(clock)}, nil
}

// Remaining implements discovery.QuotaTracker.
func (t *Tracker) Remaining(ctx context.Context, limit int) (int, error) {
	var used int
	err := t.db.QueryRowContext(ctx, `SELECT count FROM quota_usage WHERE day = ?`, quota.Day(t.clock)).Scan(&used)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reading quota: %w", err)
	}
	return quota.Remaining(limit, used), nil
}

// Consume implements discovery.QuotaTracker.
func (t *Tracker) Consume(ctx context.Context) (int, error) {
	var count int
	err := t.db.QueryRowContext(ctx, `
		INSERT INTO quota_usage (day, count) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET count = count + 1
		RETURNING count`, quota.Day(t.clock)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("recording quota: %w", err)
	}
	return count, nil
}

// Close releases the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}
