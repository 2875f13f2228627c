package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

func intPtr(v int) *int { return &v }

func TestSaveJobInsertsRunAndPages(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSummaryStoreWithPool(mock, "", "")
	require.NoError(t, err)

	created := time.Unix(1700000000, 0).UTC()
	started := created.Add(time.Second)
	finished := created.Add(time.Minute)
	summary := crawler.JobSummary{
		RunID:      "run-1",
		Status:     crawler.JobStatusFinished,
		TotalNodes: 2,
		TotalEdges: 1,
		Limit:      1000,
		SeedURL:    "https://example.com/",
		CreatedAt:  created,
		StartedAt:  &started,
		FinishedAt: &finished,
	}
	nodes := []crawler.NodeRecord{
		{URL: "https://example.com/", Status: intPtr(200), ContentType: "text/html", Depth: 0, Title: "Home"},
		{URL: "https://example.com/down", Depth: 1},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO crawl_jobs").
		WithArgs(
			"run-1",
			"https://example.com/",
			"finished",
			"",
			2,
			1,
			1000,
			created,
			&started,
			&finished,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM crawl_pages").
		WithArgs("run-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"crawl_pages"}, pageColumns).
		WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, store.SaveJob(context.Background(), summary, nodes))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveJobStopsOnJobError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSummaryStoreWithPool(mock, "runs", "pages")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	err = store.SaveJob(context.Background(), crawler.JobSummary{RunID: "run-2"}, []crawler.NodeRecord{{URL: "https://a/"}})
	require.ErrorContains(t, err, "upsert job")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveJobRollsBackFailedCopy(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSummaryStoreWithPool(mock, "runs", "pages")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM pages").
		WithArgs("run-3").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"pages"}, pageColumns).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.SaveJob(context.Background(), crawler.JobSummary{RunID: "run-3"}, []crawler.NodeRecord{{URL: "https://a/"}})
	require.ErrorContains(t, err, "copy pages")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveJobWithoutPagesSkipsCopy(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSummaryStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO crawl_jobs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM crawl_pages").
		WithArgs("run-4").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, store.SaveJob(context.Background(), crawler.JobSummary{RunID: "run-4"}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSummaryStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSummaryStoreWithPool(nil, "", "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewSummaryStoreWithPool(mock, "jobs; DROP TABLE x", "")
	require.Error(t, err)

	_, err = NewSummaryStore(context.Background(), Config{})
	require.Error(t, err)

	store, err := NewSummaryStoreWithPool(mock, "", "")
	require.NoError(t, err)
	require.Error(t, store.SaveJob(context.Background(), crawler.JobSummary{}, nil))
}

func TestPingReportsPoolError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSummaryStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
