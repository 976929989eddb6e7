package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/brandscope/intel-cli/internal/model"
)

// ErrNotFound is returned when a job or result id has no stored record.
var ErrNotFound = eris.New("store: not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status  model.JobStatus `json:"status,omitempty"`
	BrandID string          `json:"brand_id,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the durable persistence interface for collection jobs and
// their results. Implementations must tolerate whole-record rewrites: job
// state is saved as a single JSON document keyed by job id.
type Store interface {
	// Jobs
	SaveJob(ctx context.Context, job *model.CollectionJob) error
	GetJob(ctx context.Context, jobID string) (*model.CollectionJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.CollectionJob, error)
	ListActiveJobs(ctx context.Context) ([]model.CollectionJob, error)

	// Results
	SaveCollectedData(ctx context.Context, data *model.CollectedData) error
	GetCollectedData(ctx context.Context, jobID string) (*model.CollectedData, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
