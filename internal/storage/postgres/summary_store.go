// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkgraph-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for run summaries.
type Config struct {
	DSN             string
	JobsTable       string
	PagesTable      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

var pageColumns = []string{"run_id", "url", "status_code", "content_type", "depth", "title"}

// SummaryStore writes one row per finished run and one row per visited page.
type SummaryStore struct {
	pool       execCloser
	jobsTable  string
	pagesTable string
}

// NewSummaryStore creates a Postgres-backed SummaryStore using the provided config.
func NewSummaryStore(ctx context.Context, cfg Config) (*SummaryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSummaryStoreWithPool(pool, cfg.JobsTable, cfg.PagesTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewSummaryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSummaryStoreWithPool(pool execCloser, jobsTable, pagesTable string) (*SummaryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if jobsTable == "" {
		jobsTable = "crawl_jobs"
	}
	if pagesTable == "" {
		pagesTable = "crawl_pages"
	}
	for _, table := range []string{jobsTable, pagesTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &SummaryStore{pool: pool, jobsTable: jobsTable, pagesTable: pagesTable}, nil
}

// Close releases the underlying pool resources.
func (s *SummaryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *SummaryStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// SaveJob upserts the run row and replaces its pages in one transaction.
// Pages are bulk-loaded with COPY.
func (s *SummaryStore) SaveJob(ctx context.Context, summary crawler.JobSummary, nodes []crawler.NodeRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("summary store is not configured")
	}
	if summary.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := s.writeJob(ctx, tx, summary, nodes); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SummaryStore) writeJob(ctx context.Context, tx pgx.Tx, summary crawler.JobSummary, nodes []crawler.NodeRecord) error {
	jobQuery := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	seed_url,
	status,
	error_message,
	total_nodes,
	total_edges,
	hard_link_limit,
	created_at,
	started_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (run_id) DO UPDATE SET
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	total_nodes = EXCLUDED.total_nodes,
	total_edges = EXCLUDED.total_edges,
	finished_at = EXCLUDED.finished_at`, s.jobsTable)

	if _, err := tx.Exec(ctx, jobQuery,
		summary.RunID,
		summary.SeedURL,
		string(summary.Status),
		summary.Error,
		summary.TotalNodes,
		summary.TotalEdges,
		summary.Limit,
		summary.CreatedAt,
		summary.StartedAt,
		summary.FinishedAt,
	); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id = $1", s.pagesTable), summary.RunID); err != nil {
		return fmt.Errorf("clear pages: %w", err)
	}
	if len(nodes) == 0 {
		return nil
	}

	rows := pgx.CopyFromSlice(len(nodes), func(i int) ([]any, error) {
		n := nodes[i]
		return []any{summary.RunID, n.URL, n.Status, n.ContentType, n.Depth, n.Title}, nil
	})
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{s.pagesTable}, pageColumns, rows)
	if err != nil {
		return fmt.Errorf("copy pages: %w", err)
	}
	if copied != int64(len(nodes)) {
		return fmt.Errorf("copy pages: wrote %d of %d rows", copied, len(nodes))
	}
	return nil
}
