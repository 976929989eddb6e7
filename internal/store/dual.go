package store

import (
	"context"

	"github.com/brandscope/intel-cli/internal/model"
)

// Indexer is the secondary searchable sink behind DualStore. It is satisfied
// by *ElasticIndex.
type Indexer interface {
	IndexJob(ctx context.Context, job *model.CollectionJob) error
	IndexResult(ctx context.Context, data *model.CollectedData) error
}

// DualStore writes through to a durable primary and mirrors records to a
// best-effort secondary index. The primary is authoritative: reads always hit
// it, and a secondary failure never fails the operation.
type DualStore struct {
	primary   Store
	secondary Indexer
}

// NewDual wraps primary with an optional secondary indexer. A nil secondary
// degrades to a plain pass-through.
func NewDual(primary Store, secondary Indexer) *DualStore {
	return &DualStore{primary: primary, secondary: secondary}
}

func (d *DualStore) SaveJob(ctx context.Context, job *model.CollectionJob) error {
	if err := d.primary.SaveJob(ctx, job); err != nil {
		return err
	}
	if d.secondary != nil {
		if err := d.secondary.IndexJob(ctx, job); err != nil {
			logIndexErr("save_job", job.ID, err)
		}
	}
	return nil
}

func (d *DualStore) GetJob(ctx context.Context, jobID string) (*model.CollectionJob, error) {
	return d.primary.GetJob(ctx, jobID)
}

func (d *DualStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	if err := d.primary.UpdateJobStatus(ctx, jobID, status, errMsg); err != nil {
		return err
	}
	if d.secondary != nil {
		if job, err := d.primary.GetJob(ctx, jobID); err == nil {
			if err := d.secondary.IndexJob(ctx, job); err != nil {
				logIndexErr("update_job_status", jobID, err)
			}
		}
	}
	return nil
}

func (d *DualStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.CollectionJob, error) {
	return d.primary.ListJobs(ctx, filter)
}

func (d *DualStore) ListActiveJobs(ctx context.Context) ([]model.CollectionJob, error) {
	return d.primary.ListActiveJobs(ctx)
}

func (d *DualStore) SaveCollectedData(ctx context.Context, data *model.CollectedData) error {
	if err := d.primary.SaveCollectedData(ctx, data); err != nil {
		return err
	}
	if d.secondary != nil {
		if err := d.secondary.IndexResult(ctx, data); err != nil {
			logIndexErr("save_collected_data", data.JobID, err)
		}
	}
	return nil
}

func (d *DualStore) GetCollectedData(ctx context.Context, jobID string) (*model.CollectedData, error) {
	return d.primary.GetCollectedData(ctx, jobID)
}

func (d *DualStore) Migrate(ctx context.Context) error {
	return d.primary.Migrate(ctx)
}

func (d *DualStore) Close() error {
	return d.primary.Close()
}
