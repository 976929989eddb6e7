package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandscope/intel-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "intel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testJob(id string) *model.CollectionJob {
	return &model.CollectionJob{
		ID:               id,
		BrandID:          "acme",
		CompetitorID:     "globex",
		AreaID:           "austin-tx",
		RequestID:        "req-" + id,
		RequestedSources: []model.SourceKind{model.SourceNews, model.SourceWebsite},
		CompletedSources: []model.SourceKind{},
		RemainingSources: []model.SourceKind{model.SourceNews, model.SourceWebsite},
		Status:           model.JobStatusStarted,
		Progress:         0,
		CurrentStep:      "queued",
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLiteSaveAndGetJob(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job := testJob("j1")
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestSQLiteSaveJobUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	job := testJob("j1")
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = model.JobStatusInProgress
	job.Progress = 55
	job.CompletedSources = []model.SourceKind{model.SourceNews}
	job.RemainingSources = []model.SourceKind{model.SourceWebsite}
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusInProgress, got.Status)
	assert.Equal(t, 55, got.Progress)
	assert.Equal(t, []model.SourceKind{model.SourceNews}, got.CompletedSources)
}

func TestSQLiteGetJobNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteUpdateJobStatus(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveJob(ctx, testJob("j1")))
	require.NoError(t, s.UpdateJobStatus(ctx, "j1", model.JobStatusFailed, "collector blew up"))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, "collector blew up", got.Error)
	assert.NotNil(t, got.CompletedAt, "terminal status sets completion time")

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", model.JobStatusFailed, ""), ErrNotFound)
}

func TestSQLiteListJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	j1 := testJob("j1")
	j2 := testJob("j2")
	j2.BrandID = "initech"
	j2.Status = model.JobStatusCompleted
	require.NoError(t, s.SaveJob(ctx, j1))
	require.NoError(t, s.SaveJob(ctx, j2))

	all, err := s.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := s.ListJobs(ctx, JobFilter{Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "j2", completed[0].ID)

	byBrand, err := s.ListJobs(ctx, JobFilter{BrandID: "initech"})
	require.NoError(t, err)
	require.Len(t, byBrand, 1)
	assert.Equal(t, "j2", byBrand[0].ID)

	limited, err := s.ListJobs(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteListActiveJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	started := testJob("j1")
	running := testJob("j2")
	running.Status = model.JobStatusInProgress
	done := testJob("j3")
	done.Status = model.JobStatusCompleted
	cancelled := testJob("j4")
	cancelled.Status = model.JobStatusCancelled

	for _, j := range []*model.CollectionJob{started, running, done, cancelled} {
		require.NoError(t, s.SaveJob(ctx, j))
	}

	active, err := s.ListActiveJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	ids := []string{active[0].ID, active[1].ID}
	assert.ElementsMatch(t, []string{"j1", "j2"}, ids)
}

func TestSQLiteCollectedDataRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveJob(ctx, testJob("j1")))

	data := &model.CollectedData{
		JobID:        "j1",
		BrandID:      "acme",
		CompetitorID: "globex",
		AreaID:       "austin-tx",
		BrandData: model.EntitySignalBundle{
			model.SourceNews: {
				Kind:       model.SourceNews,
				Sentiment:  0.4,
				Mentions:   12,
				Metrics:    map[string]float64{"articles_7d": 3},
				Provenance: model.ProvenanceLive,
			},
		},
		CompetitorData: model.EntitySignalBundle{
			model.SourceNews: {
				Kind:       model.SourceNews,
				Sentiment:  -0.1,
				Mentions:   4,
				Provenance: model.ProvenanceFallbackError,
			},
		},
		CollectedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveCollectedData(ctx, data))

	got, err := s.GetCollectedData(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = s.GetCollectedData(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
