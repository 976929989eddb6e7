// Package job owns the lifecycle of collection jobs: submission, two-sided
// brand/competitor reconciliation, persistence, cancellation, and the
// hand-off to the downstream analysis stage.
package job

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brandscope/intel-cli/internal/collector"
	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/store"
)

// ErrNotReady is returned by GetResult while the job is not completed.
var ErrNotReady = eris.New("job: result not ready")

// LedgerWriter is the slice of the shared ledger the manager needs. It is
// satisfied by *ledger.Ledger.
type LedgerWriter interface {
	Create(requestID, brandID string) error
	UpdateCollection(requestID, jobID, status string) error
	UpdateAnalysis(requestID, analysisID, status string) error
}

// Manager runs collection jobs. Construct one at process start and share it;
// it keeps per-job in-flight state internally.
type Manager struct {
	store   store.Store
	ledger  LedgerWriter
	runner  *collector.Runner
	trigger AnalysisTrigger

	// PerSourceEstimate feeds the estimated_duration_seconds hint returned
	// at submission. Defaults to 20s per requested source.
	PerSourceEstimate time.Duration

	// DefaultSources is the catalog used when a request omits sources.
	// Empty means every known source kind.
	DefaultSources []model.SourceKind

	mu     sync.Mutex
	active map[string]*jobState
}

// NewManager wires a Manager. trigger may be nil when no analysis stage is
// configured.
func NewManager(st store.Store, led LedgerWriter, runner *collector.Runner, trigger AnalysisTrigger) *Manager {
	return &Manager{
		store:             st,
		ledger:            led,
		runner:            runner,
		trigger:           trigger,
		PerSourceEstimate: 20 * time.Second,
		active:            make(map[string]*jobState),
	}
}

// EstimatedDuration returns the duration hint for a job over n sources.
func (m *Manager) EstimatedDuration(n int) time.Duration {
	return time.Duration(n) * m.PerSourceEstimate
}

// StartJob validates the request, persists the initial job record and the
// shared ledger entry, and launches collection in the background. It returns
// immediately with the job in Started state.
func (m *Manager) StartJob(ctx context.Context, req model.CollectRequest) (*model.CollectionJob, error) {
	sources, err := m.resolveSources(req.Sources)
	if err != nil {
		return nil, err
	}
	if req.BrandID == "" || req.CompetitorID == "" {
		return nil, eris.New("job: brand_id and competitor_id are required")
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	j := &model.CollectionJob{
		ID:               uuid.New().String(),
		BrandID:          req.BrandID,
		CompetitorID:     req.CompetitorID,
		AreaID:           req.AreaID,
		RequestID:        requestID,
		RequestedSources: sources,
		CompletedSources: []model.SourceKind{},
		RemainingSources: append([]model.SourceKind(nil), sources...),
		Status:           model.JobStatusStarted,
		CurrentStep:      "queued",
		CreatedAt:        time.Now().UTC(),
	}

	if err := m.store.SaveJob(ctx, j); err != nil {
		return nil, eris.Wrap(err, "job: persist new job")
	}
	if err := m.ledger.Create(requestID, req.BrandID); err != nil {
		if uerr := m.store.UpdateJobStatus(ctx, j.ID, model.JobStatusFailed, err.Error()); uerr != nil {
			zap.L().Error("failed to mark job failed", zap.String("job_id", j.ID), zap.Error(uerr))
		}
		return nil, eris.Wrap(err, "job: create ledger record")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	state := newJobState(j, cancel)

	m.mu.Lock()
	m.active[j.ID] = state
	m.mu.Unlock()

	go m.run(runCtx, state)

	return state.snapshot(), nil
}

// resolveSources applies the omitted-vs-empty rule: a nil slice means the
// configured default catalog, an explicit empty list is a validation error.
// Duplicates collapse to one entry so per-source completion accounting stays
// one slot per kind.
func (m *Manager) resolveSources(requested []model.SourceKind) ([]model.SourceKind, error) {
	if requested == nil {
		requested = m.DefaultSources
		if len(requested) == 0 {
			requested = model.AllSources()
		}
	} else if len(requested) == 0 {
		return nil, eris.New("job: sources must not be empty")
	}
	sources := make([]model.SourceKind, 0, len(requested))
	for _, k := range requested {
		if !model.ValidSource(k) {
			return nil, eris.Errorf("job: unknown source %q", k)
		}
		if !m.runner.Has(k) {
			return nil, eris.Errorf("job: no collector registered for %q", k)
		}
		if slices.Contains(sources, k) {
			continue
		}
		sources = append(sources, k)
	}
	return sources, nil
}

func (m *Manager) run(ctx context.Context, state *jobState) {
	defer func() {
		m.mu.Lock()
		delete(m.active, state.job.ID)
		m.mu.Unlock()
	}()

	snap := state.snapshot()
	log := zap.L().With(zap.String("job_id", snap.ID), zap.String("brand_id", snap.BrandID))

	if err := m.ledger.UpdateCollection(snap.RequestID, snap.ID, model.LedgerStatusRunning); err != nil {
		log.Warn("ledger update failed", zap.Error(err))
	}

	state.mu.Lock()
	state.job.Status = model.JobStatusInProgress
	state.job.Progress = 10
	state.job.CurrentStep = "collecting"
	snap = state.snapshotLocked()
	state.mu.Unlock()
	m.persist(ctx, snap, log)

	kinds := snap.RequestedSources
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := m.runner.Run(gCtx, snap.BrandID, snap.AreaID, kinds, func(_ string, kind model.SourceKind, payload *model.SourcePayload) {
			m.onSourceDone(ctx, state, sideBrand, kind, payload, log)
		})
		return err
	})
	g.Go(func() error {
		_, err := m.runner.Run(gCtx, snap.CompetitorID, snap.AreaID, kinds, func(_ string, kind model.SourceKind, payload *model.SourcePayload) {
			m.onSourceDone(ctx, state, sideCompetitor, kind, payload, log)
		})
		return err
	})
	err := g.Wait()

	if state.isCancelled() {
		// Terminal status and ledger were already written by CancelJob.
		// Partial results are discarded.
		log.Info("job cancelled, discarding partial results")
		return
	}
	if err != nil {
		m.fail(ctx, state, err, log)
		return
	}
	if !state.done() {
		m.fail(ctx, state, eris.New("job: collection finished with sources remaining"), log)
		return
	}

	m.complete(ctx, state, log)
}

func (m *Manager) onSourceDone(ctx context.Context, state *jobState, side entitySide, kind model.SourceKind, payload *model.SourcePayload, log *zap.Logger) {
	snap := state.recordCompletion(side, kind, payload)
	if snap == nil {
		return
	}
	log.Info("source completed both sides",
		zap.String("source", string(kind)),
		zap.Int("progress", snap.Progress))
	m.persist(ctx, snap, log)
}

func (m *Manager) complete(ctx context.Context, state *jobState, log *zap.Logger) {
	brand, competitor := state.bundles()

	state.mu.Lock()
	now := time.Now().UTC()
	state.job.Status = model.JobStatusCompleted
	state.job.Progress = 100
	state.job.CurrentStep = "completed"
	state.job.CompletedAt = &now
	snap := state.snapshotLocked()
	state.mu.Unlock()

	data := &model.CollectedData{
		JobID:          snap.ID,
		BrandID:        snap.BrandID,
		CompetitorID:   snap.CompetitorID,
		AreaID:         snap.AreaID,
		BrandData:      brand,
		CompetitorData: competitor,
		CollectedAt:    now,
	}
	if err := m.store.SaveCollectedData(ctx, data); err != nil {
		m.fail(ctx, state, eris.Wrap(err, "persist collected data"), log)
		return
	}
	if err := m.store.SaveJob(ctx, snap); err != nil {
		m.fail(ctx, state, eris.Wrap(err, "persist completed job"), log)
		return
	}
	if err := m.ledger.UpdateCollection(snap.RequestID, snap.ID, model.LedgerStatusCompleted); err != nil {
		log.Warn("ledger update failed", zap.Error(err))
	}
	log.Info("job completed", zap.Int("sources", len(snap.CompletedSources)))

	if m.trigger != nil {
		go m.triggerAnalysis(snap, log)
	}
}

// triggerAnalysis is fire-and-forget: a trigger failure marks the analysis
// side FAILED in the ledger but never reverts the completed collection job.
func (m *Manager) triggerAnalysis(snap *model.CollectionJob, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	analysisID, err := m.trigger.Trigger(ctx, snap.RequestID, snap.ID)
	if err != nil {
		log.Warn("analysis trigger failed", zap.Error(err))
		if lerr := m.ledger.UpdateAnalysis(snap.RequestID, "", model.LedgerStatusFailed); lerr != nil {
			log.Warn("ledger update failed", zap.Error(lerr))
		}
		return
	}
	if lerr := m.ledger.UpdateAnalysis(snap.RequestID, analysisID, model.LedgerStatusRunning); lerr != nil {
		log.Warn("ledger update failed", zap.Error(lerr))
	}
}

func (m *Manager) fail(ctx context.Context, state *jobState, cause error, log *zap.Logger) {
	state.mu.Lock()
	state.job.Status = model.JobStatusFailed
	state.job.Error = eris.ToString(cause, false)
	snap := state.snapshotLocked()
	state.mu.Unlock()

	log.Error("job failed", zap.Error(cause))
	m.persist(ctx, snap, log)
	if err := m.ledger.UpdateCollection(snap.RequestID, snap.ID, model.LedgerStatusFailed); err != nil {
		log.Warn("ledger update failed", zap.Error(err))
	}
}

// persist saves a job snapshot, logging rather than failing: a missed
// intermediate write self-heals on the next promotion.
func (m *Manager) persist(ctx context.Context, snap *model.CollectionJob, log *zap.Logger) {
	if err := m.store.SaveJob(ctx, snap); err != nil {
		log.Warn("job persist failed", zap.Error(err))
	}
}

// GetStatus returns the current job state, preferring live in-flight state
// over the persisted record.
func (m *Manager) GetStatus(ctx context.Context, jobID string) (*model.CollectionJob, error) {
	m.mu.Lock()
	state, ok := m.active[jobID]
	m.mu.Unlock()
	if ok {
		return state.snapshot(), nil
	}
	return m.store.GetJob(ctx, jobID)
}

// GetResult returns the collected data once the job completed, or ErrNotReady
// for any non-completed job, cancelled jobs included.
func (m *Manager) GetResult(ctx context.Context, jobID string) (*model.CollectedData, error) {
	j, err := m.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != model.JobStatusCompleted {
		return nil, ErrNotReady
	}
	return m.store.GetCollectedData(ctx, jobID)
}

// CancelJob cooperatively cancels an in-flight job. It returns false when the
// job is unknown or already terminal. Collector calls already in flight are
// not preempted; their late callbacks are ignored.
func (m *Manager) CancelJob(ctx context.Context, jobID string) bool {
	m.mu.Lock()
	state, ok := m.active[jobID]
	m.mu.Unlock()

	if !ok {
		j, err := m.store.GetJob(ctx, jobID)
		if err != nil || j.Status.Terminal() {
			return false
		}
		// Leftover from a previous process: mark it cancelled directly.
		if err := m.store.UpdateJobStatus(ctx, jobID, model.JobStatusCancelled, ""); err != nil {
			zap.L().Warn("cancel persist failed", zap.String("job_id", jobID), zap.Error(err))
			return false
		}
		if err := m.ledger.UpdateCollection(j.RequestID, jobID, model.LedgerStatusCancelled); err != nil {
			zap.L().Warn("ledger update failed", zap.String("job_id", jobID), zap.Error(err))
		}
		return true
	}

	if !state.markCancelled() {
		return false
	}
	snap := state.snapshot()
	m.persist(ctx, snap, zap.L())
	if err := m.ledger.UpdateCollection(snap.RequestID, jobID, model.LedgerStatusCancelled); err != nil {
		zap.L().Warn("ledger update failed", zap.String("job_id", jobID), zap.Error(err))
	}
	return true
}

// ListActive returns jobs persisted as started or in progress.
func (m *Manager) ListActive(ctx context.Context) ([]model.CollectionJob, error) {
	return m.store.ListActiveJobs(ctx)
}
