package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forPelevin/vidsum/internal/domain/jobs"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    status      TEXT NOT NULL,
    step        TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT '',
    source_key  TEXT NOT NULL DEFAULT '',
    result      JSONB,
    error       TEXT NOT NULL DEFAULT '',
    files       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_cache ON jobs(kind, source_key, status);
`

// Postgres is a JobStore for deployments where several API processes share
// Job state.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Create(ctx context.Context, j jobs.Job) error {
	result, files, err := encodeMaps(j)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO jobs (id, kind, status, step, source, source_key, result, error, files, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, string(j.Kind), string(j.Status), j.Step, j.Source, j.SourceKey,
		result, j.Error, files, j.CreatedAt, j.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (p *Postgres) Save(ctx context.Context, j jobs.Job) error {
	result, files, err := encodeMaps(j)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, step = $2, result = $3, error = $4, files = $5, updated_at = $6
		WHERE id = $7`,
		string(j.Status), j.Step, result, j.Error, files, j.UpdatedAt, j.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (jobs.Job, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanPostgresJob(row)
}

func (p *Postgres) List(ctx context.Context, limit int) ([]jobs.Job, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := p.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT $1`, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		j, err := scanPostgresJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (p *Postgres) FindCompleted(ctx context.Context, kind jobs.Kind, sourceKey string) (jobs.Job, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE kind = $1 AND source_key = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		string(kind), sourceKey, string(jobs.StatusCompleted))
	return scanPostgresJob(row)
}

func scanPostgresJob(row pgx.Row) (jobs.Job, error) {
	var (
		j             jobs.Job
		kind, status  string
		result, files []byte
	)
	err := row.Scan(&j.ID, &kind, &status, &j.Step, &j.Source, &j.SourceKey, &result, &j.Error, &files, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobs.Job{}, ErrNotFound
	}
	if err != nil {
		return jobs.Job{}, err
	}
	j.Kind = jobs.Kind(kind)
	j.Status = jobs.Status(status)
	if err := decodeMaps(&j, result, files); err != nil {
		return jobs.Job{}, err
	}
	return j, nil
}
