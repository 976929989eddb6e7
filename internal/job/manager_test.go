package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandscope/intel-cli/internal/collector"
	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/store"
)

// memStore is an in-memory Store for manager tests.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*model.CollectionJob
	data map[string]*model.CollectedData
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]*model.CollectionJob),
		data: make(map[string]*model.CollectedData),
	}
}

func (m *memStore) SaveJob(_ context.Context, job *model.CollectionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, jobID string) (*model.CollectionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) UpdateJobStatus(_ context.Context, jobID string, status model.JobStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	j.Status = status
	j.Error = errMsg
	return nil
}

func (m *memStore) ListJobs(_ context.Context, filter store.JobFilter) ([]model.CollectionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CollectionJob
	for _, j := range m.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) ListActiveJobs(_ context.Context) ([]model.CollectionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CollectionJob
	for _, j := range m.jobs {
		if !j.Status.Terminal() {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memStore) SaveCollectedData(_ context.Context, data *model.CollectedData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *data
	m.data[data.JobID] = &cp
	return nil
}

func (m *memStore) GetCollectedData(_ context.Context, jobID string) (*model.CollectedData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// fakeLedger records ledger calls.
type fakeLedger struct {
	mu         sync.Mutex
	created    []string
	collection map[string]string
	analysis   map[string]string
	analysisID string
	createErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		collection: make(map[string]string),
		analysis:   make(map[string]string),
	}
}

func (f *fakeLedger) Create(requestID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, requestID)
	return nil
}

func (f *fakeLedger) UpdateCollection(requestID, _, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collection[requestID] = status
	return nil
}

func (f *fakeLedger) UpdateAnalysis(requestID, analysisID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analysis[requestID] = status
	f.analysisID = analysisID
	return nil
}

func (f *fakeLedger) collectionStatus(requestID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collection[requestID]
}

func (f *fakeLedger) analysisStatus(requestID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analysis[requestID]
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTrigger) Trigger(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "analysis-1", nil
}

// testCollector is a controllable collector: err makes Collect fail, block
// makes it wait until the channel closes or the context ends.
type testCollector struct {
	kind  model.SourceKind
	err   error
	block chan struct{}
}

func (c *testCollector) Kind() model.SourceKind { return c.kind }

func (c *testCollector) Collect(ctx context.Context, _, _ string) (*model.SourcePayload, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &model.SourcePayload{
		Kind:        c.kind,
		Sentiment:   0.25,
		Mentions:    7,
		Provenance:  model.ProvenanceLive,
		CollectedAt: time.Now().UTC(),
	}, nil
}

func (c *testCollector) Mock(string) *model.SourcePayload {
	return &model.SourcePayload{
		Kind:        c.kind,
		Provenance:  model.ProvenanceFallbackEstimated,
		Mentions:    1,
		Metrics:     map[string]float64{},
		CollectedAt: time.Now().UTC(),
	}
}

type managerEnv struct {
	store   *memStore
	ledger  *fakeLedger
	trigger *fakeTrigger
	manager *Manager
}

func newManagerEnv(t *testing.T, collectors ...collector.Collector) *managerEnv {
	t.Helper()
	if len(collectors) == 0 {
		for _, kind := range model.AllSources() {
			collectors = append(collectors, &testCollector{kind: kind})
		}
	}
	env := &managerEnv{
		store:   newMemStore(),
		ledger:  newFakeLedger(),
		trigger: &fakeTrigger{},
	}
	env.manager = NewManager(env.store, env.ledger, collector.NewRunner(collectors...), env.trigger)
	return env
}

func waitTerminal(t *testing.T, m *Manager, jobID string) *model.CollectionJob {
	t.Helper()
	var j *model.CollectionJob
	require.Eventually(t, func() bool {
		var err error
		j, err = m.GetStatus(context.Background(), jobID)
		return err == nil && j.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return j
}

func TestStartJobRunsToCompletion(t *testing.T) {
	env := newManagerEnv(t)

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		AreaID:       "austin-tx",
		Sources:      []model.SourceKind{model.SourceNews, model.SourceWebsite},
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusStarted, j.Status)
	assert.NotEmpty(t, j.RequestID)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.ElementsMatch(t, j.RequestedSources, final.CompletedSources)
	assert.Empty(t, final.RemainingSources)
	require.NotNil(t, final.CompletedAt)

	data, err := env.manager.GetResult(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", data.BrandID)
	assert.Equal(t, "globex", data.CompetitorID)
	for _, kind := range j.RequestedSources {
		assert.Contains(t, data.BrandData, kind)
		assert.Contains(t, data.CompetitorData, kind)
	}

	assert.Equal(t, model.LedgerStatusCompleted, env.ledger.collectionStatus(j.RequestID))
	require.Eventually(t, func() bool {
		return env.ledger.analysisStatus(j.RequestID) == model.LedgerStatusRunning
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartJobDefaultsToFullCatalog(t *testing.T) {
	env := newManagerEnv(t)

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, model.AllSources(), j.RequestedSources)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Len(t, final.CompletedSources, len(model.AllSources()))
}

func TestStartJobValidation(t *testing.T) {
	env := newManagerEnv(t)

	_, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		CompetitorID: "globex",
	})
	assert.Error(t, err, "missing brand")

	_, err = env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID: "acme",
	})
	assert.Error(t, err, "missing competitor")

	_, err = env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{},
	})
	assert.Error(t, err, "explicit empty sources")

	_, err = env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{"carrier_pigeon"},
	})
	assert.Error(t, err, "unknown source")

	// Rejected requests leave no trace: no job rows, no ledger records.
	jobs, err := env.store.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, env.ledger.created)
}

func TestJobCompletesWithFallbacksWhenCollectorsFail(t *testing.T) {
	env := newManagerEnv(t,
		&testCollector{kind: model.SourceNews, err: eris.New("HTTP 403")},
		&testCollector{kind: model.SourceSocialMedia, err: eris.New("HTTP 403")},
	)

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{model.SourceNews, model.SourceSocialMedia},
	})
	require.NoError(t, err)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)

	data, err := env.manager.GetResult(context.Background(), j.ID)
	require.NoError(t, err)
	for _, kind := range j.RequestedSources {
		assert.Equal(t, model.ProvenanceFallbackError, data.BrandData[kind].Provenance)
		assert.Equal(t, model.ProvenanceFallbackError, data.CompetitorData[kind].Provenance)
	}
}

func TestCancelJobDiscardsPartialResults(t *testing.T) {
	gate := make(chan struct{})
	env := newManagerEnv(t,
		&testCollector{kind: model.SourceNews},
		&testCollector{kind: model.SourceWebsite, block: gate},
	)

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{model.SourceNews, model.SourceWebsite},
	})
	require.NoError(t, err)

	// Let the unblocked source land before cancelling.
	require.Eventually(t, func() bool {
		s, err := env.manager.GetStatus(context.Background(), j.ID)
		return err == nil && s.HasCompleted(model.SourceNews)
	}, 5*time.Second, 10*time.Millisecond)

	require.True(t, env.manager.CancelJob(context.Background(), j.ID))
	close(gate)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCancelled, final.Status)
	assert.Equal(t, model.LedgerStatusCancelled, env.ledger.collectionStatus(j.RequestID))

	_, err = env.manager.GetResult(context.Background(), j.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	env.store.mu.Lock()
	_, hasData := env.store.data[j.ID]
	env.store.mu.Unlock()
	assert.False(t, hasData, "partial results must be discarded")
}

func TestCancelJobUnknown(t *testing.T) {
	env := newManagerEnv(t)
	assert.False(t, env.manager.CancelJob(context.Background(), "no-such-job"))
}

func TestCancelJobAlreadyTerminal(t *testing.T) {
	env := newManagerEnv(t)

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{model.SourceNews},
	})
	require.NoError(t, err)
	waitTerminal(t, env.manager, j.ID)

	assert.False(t, env.manager.CancelJob(context.Background(), j.ID))
}

func TestCancelJobLeftoverFromPreviousProcess(t *testing.T) {
	env := newManagerEnv(t)

	leftover := &model.CollectionJob{
		ID:        "stale-1",
		BrandID:   "acme",
		RequestID: "req-stale",
		Status:    model.JobStatusInProgress,
	}
	require.NoError(t, env.store.SaveJob(context.Background(), leftover))

	assert.True(t, env.manager.CancelJob(context.Background(), "stale-1"))

	j, err := env.store.GetJob(context.Background(), "stale-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, j.Status)
	assert.Equal(t, model.LedgerStatusCancelled, env.ledger.collectionStatus("req-stale"))
}

func TestLedgerCreateFailureFailsJob(t *testing.T) {
	env := newManagerEnv(t)
	env.ledger.createErr = eris.New("disk full")

	_, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{model.SourceNews},
	})
	require.Error(t, err)

	jobs, err := env.store.ListJobs(context.Background(), store.JobFilter{Status: model.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestTriggerFailureKeepsJobCompleted(t *testing.T) {
	env := newManagerEnv(t)
	env.trigger.err = eris.New("analysis engine unreachable")

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{model.SourceNews},
	})
	require.NoError(t, err)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)

	require.Eventually(t, func() bool {
		return env.ledger.analysisStatus(j.RequestID) == model.LedgerStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	// The collection side is untouched by the analysis failure.
	assert.Equal(t, model.LedgerStatusCompleted, env.ledger.collectionStatus(j.RequestID))
}

func TestGetStatusUnknownJob(t *testing.T) {
	env := newManagerEnv(t)

	_, err := env.manager.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetResultNotReady(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	env := newManagerEnv(t, &testCollector{kind: model.SourceNews, block: gate})

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources:      []model.SourceKind{model.SourceNews},
	})
	require.NoError(t, err)

	_, err = env.manager.GetResult(context.Background(), j.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	env.manager.CancelJob(context.Background(), j.ID)
}

func TestEstimatedDuration(t *testing.T) {
	env := newManagerEnv(t)
	assert.Equal(t, 80*time.Second, env.manager.EstimatedDuration(4))
}

func TestStartJobUsesConfiguredDefaultCatalog(t *testing.T) {
	env := newManagerEnv(t)
	env.manager.DefaultSources = []model.SourceKind{model.SourceNews, model.SourceWebsite}

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
	})
	require.NoError(t, err)
	assert.Equal(t, []model.SourceKind{model.SourceNews, model.SourceWebsite}, j.RequestedSources)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.ElementsMatch(t, j.RequestedSources, final.CompletedSources)
}

func TestStartJobDedupesRequestedSources(t *testing.T) {
	env := newManagerEnv(t)

	j, err := env.manager.StartJob(context.Background(), model.CollectRequest{
		BrandID:      "acme",
		CompetitorID: "globex",
		Sources: []model.SourceKind{
			model.SourceNews, model.SourceNews, model.SourceWebsite,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []model.SourceKind{model.SourceNews, model.SourceWebsite}, j.RequestedSources)

	final := waitTerminal(t, env.manager, j.ID)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Empty(t, final.RemainingSources)
}
