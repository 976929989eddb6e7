package job

import (
	"context"
	"sync"

	"github.com/brandscope/intel-cli/internal/model"
)

// jobState is the in-flight bookkeeping for one job. Completion for a source
// is two-sided: the source is promoted only after both the brand entity and
// the competitor entity have produced a payload for it. All mutation goes
// through the state's mutex so concurrent brand/competitor callbacks for the
// same source cannot race a promotion.
type jobState struct {
	mu sync.Mutex

	job            *model.CollectionJob
	brandDone      map[model.SourceKind]bool
	competitorDone map[model.SourceKind]bool
	brandData      model.EntitySignalBundle
	competitorData model.EntitySignalBundle

	cancelled bool
	cancel    context.CancelFunc
}

func newJobState(j *model.CollectionJob, cancel context.CancelFunc) *jobState {
	return &jobState{
		job:            j,
		brandDone:      make(map[model.SourceKind]bool, len(j.RequestedSources)),
		competitorDone: make(map[model.SourceKind]bool, len(j.RequestedSources)),
		brandData:      make(model.EntitySignalBundle, len(j.RequestedSources)),
		competitorData: make(model.EntitySignalBundle, len(j.RequestedSources)),
		cancel:         cancel,
	}
}

// entitySide distinguishes the two collection legs of a job.
type entitySide int

const (
	sideBrand entitySide = iota
	sideCompetitor
)

// recordCompletion notes that one side finished one source and promotes the
// source if the other side already finished it. It returns a job snapshot to
// persist, or nil when the callback should be ignored (cancelled job,
// duplicate delivery, or a source still waiting on its other side).
func (s *jobState) recordCompletion(side entitySide, kind model.SourceKind, payload *model.SourcePayload) *model.CollectionJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return nil
	}

	switch side {
	case sideBrand:
		if s.brandDone[kind] {
			return nil
		}
		s.brandDone[kind] = true
		s.brandData[kind] = payload
	case sideCompetitor:
		if s.competitorDone[kind] {
			return nil
		}
		s.competitorDone[kind] = true
		s.competitorData[kind] = payload
	}

	if !s.brandDone[kind] || !s.competitorDone[kind] {
		return nil
	}

	s.job.PromoteSource(kind)
	s.job.CurrentStep = "collected " + string(kind)
	return s.snapshotLocked()
}

// markCancelled flips the cancellation flag and signals the job context.
// Returns false if the job was already cancelled.
func (s *jobState) markCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return false
	}
	s.cancelled = true
	s.job.Status = model.JobStatusCancelled
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

func (s *jobState) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// snapshot returns a copy of the job safe to hand outside the lock.
func (s *jobState) snapshot() *model.CollectionJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *jobState) snapshotLocked() *model.CollectionJob {
	cp := *s.job
	cp.RequestedSources = append([]model.SourceKind(nil), s.job.RequestedSources...)
	cp.CompletedSources = append([]model.SourceKind(nil), s.job.CompletedSources...)
	cp.RemainingSources = append([]model.SourceKind(nil), s.job.RemainingSources...)
	return &cp
}

// bundles returns the collected data for both entities. Valid only after
// every requested source has been promoted.
func (s *jobState) bundles() (brand, competitor model.EntitySignalBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brandData, s.competitorData
}

func (s *jobState) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.job.RemainingSources) == 0
}
