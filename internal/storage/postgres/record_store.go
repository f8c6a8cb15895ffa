// Package postgres mirrors persisted contest records into a relational table.
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
	"go.uber.org/zap"

	"github.com/JakeFAU/concurso-crawler/internal/contest"
	"github.com/JakeFAU/concurso-crawler/internal/daterange"
)

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "concursos"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for contest rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// UpsertResult counts what one Upsert call did.
type UpsertResult struct {
	Inserted int
	Updated  int
	Failed   int
}

// RecordStore writes contest rows into Postgres.
type RecordStore struct {
	pool   pool
	table  string
	logger *zap.Logger
}

// NewRecordStore connects to Postgres using cfg.
func NewRecordStore(ctx context.Context, cfg Config, logger *zap.Logger) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(p, table, logger), nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string, logger *zap.Logger) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newStore(p, name, logger), nil
}

func newStore(p pool, table string, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{pool: p, table: table, logger: logger}
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the contest table when it does not exist yet.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	url          TEXT NOT NULL,
	state        TEXT NOT NULL,
	job          TEXT,
	processed_at TIMESTAMPTZ NOT NULL,
	start_date   DATE,
	end_date     DATE,
	pdf_url      TEXT,
	status       TEXT NOT NULL,
	UNIQUE (title, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Upsert writes every record, keyed by (title, url). The status column is
// derived from the start date relative to today. A failing row is logged and
// counted; only context cancellation aborts the batch.
func (s *RecordStore) Upsert(ctx context.Context, records []contest.Record, today time.Time) (UpsertResult, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (title, url, state, job, processed_at, start_date, end_date, pdf_url, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (title, url) DO UPDATE SET
	state = EXCLUDED.state,
	job = EXCLUDED.job,
	processed_at = EXCLUDED.processed_at,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	pdf_url = EXCLUDED.pdf_url,
	status = EXCLUDED.status
RETURNING (xmax = 0) AS inserted`, s.table)

	var res UpsertResult
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := daterange.ParsePtr(rec.StartDate)
		if rec.StartDate != nil && start.IsZero() {
			s.logger.Warn("invalid start date",
				zap.String("title", rec.Title),
				zap.String("start_date", *rec.StartDate))
		}
		end := daterange.ParsePtr(rec.EndDate)
		status := daterange.DeriveStatus(start, today)

		var inserted bool
		err := s.pool.QueryRow(ctx, query,
			rec.Title,
			rec.URL,
			rec.Region,
			rec.Job,
			rec.ProcessedAt,
			dateArg(start),
			dateArg(end),
			rec.DocumentURL,
			string(status),
		).Scan(&inserted)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.Failed++
			s.logger.Error("upsert contest failed",
				zap.String("title", rec.Title),
				zap.String("url", rec.URL),
				zap.Error(err))
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	s.logger.Info("relational sync complete",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed))
	return res, nil
}

// CloseExpired marks every row whose start date is before today as Closed
// and returns how many rows changed. today is the caller's calendar day, the
// same one Upsert derives statuses from.
func (s *RecordStore) CloseExpired(ctx context.Context, today time.Time) (int64, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1
WHERE start_date < $2
AND start_date IS NOT NULL
AND status <> $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, string(daterange.StatusClosed), daterange.Day(today))
	if err != nil {
		return 0, fmt.Errorf("close expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StatusSummary returns the number of rows per status.
func (s *RecordStore) StatusSummary(ctx context.Context) (map[daterange.Status]int, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("status summary: %w", err)
	}
	defer rows.Close()

	out := make(map[daterange.Status]int)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status summary: %w", err)
		}
		out[daterange.Status(status)] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("status summary: %w", err)
	}
	return out, nil
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
