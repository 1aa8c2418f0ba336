// Package postgres provides the Postgres-backed result repository.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkcheck/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the connection pool used for result export.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	// Migrate applies the bundled schema on open.
	Migrate bool
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ResultStore implements store.ResultRepository.
type ResultStore struct {
	pool pool
}

var _ store.ResultRepository = (*ResultStore)(nil)

// NewResultStore connects to Postgres and optionally applies the schema.
func NewResultStore(ctx context.Context, cfg Config) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &ResultStore{pool: p}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewResultStoreWithPool wraps an existing pool, mainly for tests.
func NewResultStoreWithPool(p pool) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &ResultStore{pool: p}, nil
}

// Migrate creates the crawl_runs and page_results tables if missing.
func (s *ResultStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply result schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *ResultStore) Close() {
	s.pool.Close()
}

// StartRun inserts a running crawl row.
func (s *ResultStore) StartRun(ctx context.Context, run store.Run) error {
	const query = `
		INSERT INTO crawl_runs (id, seed, host, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING;`
	if _, err := s.pool.Exec(ctx, query, run.ID, run.Seed, run.Host, run.StartedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert crawl run: %w", err)
	}
	return nil
}

// FinishRun stamps the final status and totals on a crawl row.
func (s *ResultStore) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	pages, errs int64,
	note *string,
) error {
	const query = `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, pages = $3, errors = $4, note = $5
		WHERE id = $6;`
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, pages, errs, note, id)
	if err != nil {
		return fmt.Errorf("finish crawl run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertPageResults writes all rows in one transaction.
func (s *ResultStore) InsertPageResults(ctx context.Context, pages []store.PageResult) error {
	if len(pages) == 0 {
		return nil
	}
	const query = `
		INSERT INTO page_results
			(run_id, url, source, status_code, bytes, healthy, error, duration_ms, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin page results: %w", err)
	}
	for _, p := range pages {
		_, err := tx.Exec(ctx, query,
			p.RunID,
			p.URL,
			p.Source,
			p.StatusCode,
			p.Bytes,
			p.Healthy,
			p.Error,
			p.Duration.Milliseconds(),
			p.FetchedAt,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert page result %s: %w", p.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit page results: %w", err)
	}
	return nil
}

// GetRun loads one crawl row.
func (s *ResultStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	const query = `
		SELECT id, seed, host, started_at, finished_at, status, pages, errors, note
		FROM crawl_runs
		WHERE id = $1;`
	var run store.Run
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Seed,
		&run.Host,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Pages,
		&run.Errors,
		&run.Note,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get crawl run: %w", err)
	}
	return run, nil
}

// ListPageResults returns a crawl's page rows in insertion order.
func (s *ResultStore) ListPageResults(
	ctx context.Context,
	runID uuid.UUID,
	onlyErrors bool,
	limit,
	offset int,
) ([]store.PageResult, error) {
	const query = `
		SELECT run_id, url, source, status_code, bytes, healthy, error, duration_ms, fetched_at
		FROM page_results
		WHERE run_id = $1 AND (NOT $2 OR NOT healthy)
		ORDER BY id
		LIMIT $3 OFFSET $4;`
	rows, err := s.pool.Query(ctx, query, runID, onlyErrors, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list page results: %w", err)
	}
	defer rows.Close()

	var out []store.PageResult
	for rows.Next() {
		var (
			p  store.PageResult
			ms int64
		)
		if err := rows.Scan(
			&p.RunID,
			&p.URL,
			&p.Source,
			&p.StatusCode,
			&p.Bytes,
			&p.Healthy,
			&p.Error,
			&ms,
			&p.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page result: %w", err)
		}
		p.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page results: %w", err)
	}
	return out, nil
}
