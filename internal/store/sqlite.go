package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brandscope/intel-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// primary store: a single local file, safe across process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'started',
	record     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS collected_data (
	job_id       TEXT PRIMARY KEY REFERENCES jobs(id),
	brand_id     TEXT NOT NULL,
	record       TEXT NOT NULL,
	collected_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_brand ON jobs(brand_id);
CREATE INDEX IF NOT EXISTS idx_collected_data_brand ON collected_data(brand_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.CollectionJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, brand_id, status, record, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, record = excluded.record, updated_at = excluded.updated_at`,
		job.ID, job.BrandID, string(job.Status), string(record), job.CreatedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save job %s", job.ID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.CollectionJob, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM jobs WHERE id = ?`, jobID,
	).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return unmarshalJob(record)
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
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

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.CollectionJob, error) {
	query := `SELECT record FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.BrandID != "" {
		query += ` AND brand_id = ?`
		args = append(args, filter.BrandID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.CollectionJob
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j, err := unmarshalJob(record)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ListActiveJobs(ctx context.Context) ([]model.CollectionJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM jobs WHERE status IN (?, ?) ORDER BY created_at DESC`,
		string(model.JobStatusStarted), string(model.JobStatusInProgress),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active jobs")
	}
	defer rows.Close()

	var jobs []model.CollectionJob
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j, err := unmarshalJob(record)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list active jobs iterate")
}

func (s *SQLiteStore) SaveCollectedData(ctx context.Context, data *model.CollectedData) error {
	record, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal collected data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collected_data (job_id, brand_id, record, collected_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (job_id) DO UPDATE SET record = excluded.record, collected_at = excluded.collected_at`,
		data.JobID, data.BrandID, string(record), data.CollectedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save collected data %s", data.JobID)
}

func (s *SQLiteStore) GetCollectedData(ctx context.Context, jobID string) (*model.CollectedData, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM collected_data WHERE job_id = ?`, jobID,
	).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get collected data %s", jobID)
	}

	var data model.CollectedData
	if err := json.Unmarshal([]byte(record), &data); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal collected data")
	}
	return &data, nil
}

func unmarshalJob(record string) (*model.CollectionJob, error) {
	var j model.CollectionJob
	if err := json.Unmarshal([]byte(record), &j); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal job record")
	}
	return &j, nil
}
