// Package postgres keeps the daily request ledger in Postgres so several
// hosts can share one quota.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/report-discovery/internal/discovery"
	"github.com/JakeFAU/report-discovery/internal/quota"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config selects the database and table.
type Config struct {
	DSN   string
	Table string
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Tracker implements discovery.QuotaTracker on Postgres.
type Tracker struct {
	pool  pool
	table string
	clock discovery.Clock
}

// Open connects and ensures the ledger table exists.
func Open(ctx context.Context, cfg Config, clock discovery.Clock) (*Tracker, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("quota.dsn is required")
	}
	p, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	t, err := NewWithPool(p, cfg.Table, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := t.ensureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPool constructs a tracker from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, clock discovery.Clock) (*Tracker, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "quota_usage"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Tracker{pool: p, table: table, clock: quota.ClockOrSystem(clock)}, nil
}

func (t *Tracker) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	day DATE PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
)`, t.table)
	if _, err := t.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create quota table: %w", err)
	}
	return nil
}

// Remaining implements discovery.QuotaTracker.
func (t *Tracker) Remaining(ctx context.Context, limit int) (int, error) {
	var used int
	query := fmt.Sprintf(`SELECT count FROM %s WHERE day = $1`, t.table)
	err := t.pool.QueryRow(ctx, query, quota.Day(t.clock)).Scan(&used)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return quota.Remaining(limit, used), nil
}

// Consume implements discovery.QuotaTracker.
func (t *Tracker) Consume(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf(`
INSERT INTO %[1]s (day, count) VALUES ($1, 1)
ON CONFLICT (day) DO UPDATE SET count = %[1]s.count + 1
RETURNING count`, t.table)
	if err := t.pool.QueryRow(ctx, query, quota.Day(t.clock)).Scan(&count); err != nil {
		return 0, fmt.Errorf("record quota: %w", err)
	}
	return count, nil
}

// Close releases the pool.
func (t *Tracker) Close() error {
	t.pool.Close()
	return nil
}
