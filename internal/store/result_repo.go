package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("crawl record not found")

// RunStatus mirrors the crawl_runs.status column.
type RunStatus string

// Statuses persisted in crawl_runs.status.
const (
	RunRunning     RunStatus = "running"
	RunClean       RunStatus = "clean"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// Run models one row of crawl_runs.
type Run struct {
	ID        uuid.UUID
	Seed      string
	Host      string
	StartedAt time.Time
	// FinishedAt is nil while the crawl is running.
	FinishedAt *time.Time
	Status     RunStatus
	Pages      int64
	Errors     int64
	Note       *string
}

// PageResult models one row of page_results. Nil pointers are stored as NULL.
type PageResult struct {
	RunID      uuid.UUID
	URL        string
	Source     string
	StatusCode *int
	Bytes      *int64
	Healthy    bool
	Error      *string
	Duration   time.Duration
	FetchedAt  time.Time
}

// ResultRepository persists crawl runs and their per-page outcomes. It is an
// export target only; nothing reads it back to resume a crawl.
type ResultRepository interface {
	// StartRun inserts a running crawl; repeated calls for the same ID are no-ops.
	StartRun(ctx context.Context, run Run) error
	// FinishRun records the final status and totals of a crawl.
	FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, pages, errs int64, note *string) error
	// InsertPageResults appends page rows in a single transaction.
	InsertPageResults(ctx context.Context, pages []PageResult) error

	// GetRun loads one crawl or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListPageResults pages through a crawl's results, optionally only unhealthy ones.
	ListPageResults(ctx context.Context, runID uuid.UUID, onlyErrors bool, limit, offset int) ([]PageResult, error)
}
