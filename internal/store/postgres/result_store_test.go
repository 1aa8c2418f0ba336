package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkcheck/internal/store"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *ResultStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewResultStoreWithPool(mock)
	require.NoError(t, err)
	return mock, s
}

func TestNewResultStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewResultStoreWithPool(nil)
	require.Error(t, err)
}

func TestNewResultStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewResultStore(context.Background(), Config{})
	require.ErrorContains(t, err, "store.dsn")
}

func TestStartRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	run := store.Run{
		ID:        uuid.New(),
		Seed:      "http://example.com/",
		Host:      "example.com",
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(run.ID, run.Seed, run.Host, run.StartedAt, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.StartRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunMissingRow(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	id := uuid.New()
	at := time.Unix(1700000100, 0).UTC()
	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(at, store.RunFailed, int64(4), int64(1), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), id, at, store.RunFailed, 4, 1, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPageResultsUsesTransaction(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	status := 200
	size := int64(1024)
	pages := []store.PageResult{
		{RunID: runID, URL: "http://example.com/", Source: "/", StatusCode: &status, Bytes: &size, Healthy: true, Duration: 120 * time.Millisecond, FetchedAt: now},
		{RunID: runID, URL: "http://example.com/missing", Source: "/", FetchedAt: now},
	}

	mock.ExpectBegin()
	for _, p := range pages {
		mock.ExpectExec("INSERT INTO page_results").
			WithArgs(p.RunID, p.URL, p.Source, pgxmock.AnyArg(), pgxmock.AnyArg(), p.Healthy, pgxmock.AnyArg(), p.Duration.Milliseconds(), p.FetchedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, s.InsertPageResults(context.Background(), pages))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPageResultsRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	page := store.PageResult{RunID: uuid.New(), URL: "http://example.com/", Source: "/"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO page_results").
		WithArgs(page.RunID, page.URL, page.Source, pgxmock.AnyArg(), pgxmock.AnyArg(), page.Healthy, pgxmock.AnyArg(), page.Duration.Milliseconds(), page.FetchedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.InsertPageResults(context.Background(), []store.PageResult{page})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPageResultsEmptyIsNoop(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	require.NoError(t, s.InsertPageResults(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	id := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	note := "context canceled"

	rows := pgxmock.NewRows([]string{"id", "seed", "host", "started_at", "finished_at", "status", "pages", "errors", "note"}).
		AddRow(id, "http://example.com/", "example.com", started, &finished, store.RunInterrupted, int64(10), int64(2), &note)
	mock.ExpectQuery("SELECT (.+) FROM crawl_runs").WithArgs(id).WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, store.RunInterrupted, run.Status)
	require.Equal(t, int64(10), run.Pages)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, finished, *run.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM crawl_runs").WithArgs(id).WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPageResults(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	runID := uuid.New()
	now := time.Unix(1700000000, 0).UTC()
	status := 404
	size := int64(12)
	msg := "not found"

	rows := pgxmock.NewRows([]string{"run_id", "url", "source", "status_code", "bytes", "healthy", "error", "duration_ms", "fetched_at"}).
		AddRow(runID, "http://example.com/gone", "/", &status, &size, false, &msg, int64(250), now)
	mock.ExpectQuery("SELECT (.+) FROM page_results").
		WithArgs(runID, true, 50, 0).
		WillReturnRows(rows)

	got, err := s.ListPageResults(context.Background(), runID, true, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "http://example.com/gone", got[0].URL)
	require.Equal(t, 250*time.Millisecond, got[0].Duration)
	require.False(t, got[0].Healthy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	mock, s := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
