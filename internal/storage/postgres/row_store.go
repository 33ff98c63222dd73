// Package postgres mirrors discovery output rows into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/report-discovery/internal/discovery"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RowStoreConfig controls the Postgres connection pool used for output rows.
type RowStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RowStore implements discovery.RowSink. Every batch of rows is written in
// one transaction tagged with the run ID.
type RowStore struct {
	pool  txBeginner
	table string
	runID string
	clock discovery.Clock
}

// NewRowStore connects, creates the table if needed, and returns a store.
func NewRowStore(ctx context.Context, cfg RowStoreConfig, runID string, clock discovery.Clock) (*RowStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("output.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRowStoreWithPool(pool, cfg.Table, runID, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRowStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRowStoreWithPool(pool txBeginner, table, runID string, clock discovery.Clock) (*RowStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "discovery_rows"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &RowStore{pool: pool, table: table, runID: runID, clock: clock}, nil
}

// EnsureSchema creates the rows table if it does not exist.
func (s *RowStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT        NOT NULL,
	entity_id   TEXT        NOT NULL,
	entity_name TEXT        NOT NULL,
	tier        TEXT        NOT NULL,
	rank        INTEGER     NOT NULL,
	url         TEXT        NOT NULL,
	year        TEXT        NOT NULL,
	score       INTEGER     NOT NULL,
	written_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, entity_id, entity_name, rank)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create rows table: %w", err)
	}
	return nil
}

// WriteRows implements discovery.RowSink.
func (s *RowStore) WriteRows(ctx context.Context, rows []discovery.OutputRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rows tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	entity_id,
	entity_name,
	tier,
	rank,
	url,
	year,
	score,
	written_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (run_id, entity_id, entity_name, rank) DO UPDATE
SET url = EXCLUDED.url, year = EXCLUDED.year, score = EXCLUDED.score, written_at = EXCLUDED.written_at`, s.table)

	now := s.clock.Now()
	for _, r := range rows {
		args := []any{s.runID, r.ID, r.Name, string(r.Tier), r.Rank, r.URL, r.Year, r.Score, now}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rows: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RowStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
