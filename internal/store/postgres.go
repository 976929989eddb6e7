package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/brandscope/intel-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store, abstracted so tests
// can substitute a mock connection.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool, for deployments where jobs
// must survive the host rather than just the process.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"save_job":       `INSERT INTO jobs (id, brand_id, status, record, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO UPDATE SET status = $3, record = $4, updated_at = $6`,
	"get_job":        `SELECT record FROM jobs WHERE id = $1`,
	"save_collected": `INSERT INTO collected_data (job_id, brand_id, record, collected_at) VALUES ($1, $2, $3, $4) ON CONFLICT (job_id) DO UPDATE SET record = $3, collected_at = $4`,
	"get_collected":  `SELECT record FROM collected_data WHERE job_id = $1`,
	"list_active":    `SELECT record FROM jobs WHERE status IN ($1, $2) ORDER BY created_at DESC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'started',
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS collected_data (
	job_id       TEXT PRIMARY KEY REFERENCES jobs(id),
	brand_id     TEXT NOT NULL,
	record       JSONB NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_brand ON jobs(brand_id);
CREATE INDEX IF NOT EXISTS idx_collected_data_brand ON collected_data(brand_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveJob(ctx context.Context, job *model.CollectionJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, brand_id, status, record, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET status = $3, record = $4, updated_at = $6`,
		job.ID, job.BrandID, string(job.Status), record, job.CreatedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save job %s", job.ID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.CollectionJob, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM jobs WHERE id = $1`, jobID,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return unmarshalJob(string(record))
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	if status.Terminal() && job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	return s.SaveJob(ctx, job)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.CollectionJob, error) {
	query := `SELECT record FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.BrandID != "" {
		query += fmt.Sprintf(` AND brand_id = $%d`, argIdx)
		args = append(args, filter.BrandID)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) ListActiveJobs(ctx context.Context) ([]model.CollectionJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM jobs WHERE status IN ($1, $2) ORDER BY created_at DESC`,
		string(model.JobStatusStarted), string(model.JobStatusInProgress),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active jobs")
	}
	defer rows.Close()

	return collectJobs(rows)
}

func (s *PostgresStore) SaveCollectedData(ctx context.Context, data *model.CollectedData) error {
	record, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal collected data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO collected_data (job_id, brand_id, record, collected_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (job_id) DO UPDATE SET record = $3, collected_at = $4`,
		data.JobID, data.BrandID, record, data.CollectedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save collected data %s", data.JobID)
}

func (s *PostgresStore) GetCollectedData(ctx context.Context, jobID string) (*model.CollectedData, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM collected_data WHERE job_id = $1`, jobID,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get collected data %s", jobID)
	}

	var data model.CollectedData
	if err := json.Unmarshal(record, &data); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal collected data")
	}
	return &data, nil
}

func collectJobs(rows pgx.Rows) ([]model.CollectionJob, error) {
	var jobs []model.CollectionJob
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		j, err := unmarshalJob(string(record))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}
