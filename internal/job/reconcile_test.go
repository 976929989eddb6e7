package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandscope/intel-cli/internal/model"
)

func newTestState(sources ...model.SourceKind) *jobState {
	j := &model.CollectionJob{
		ID:               "job-1",
		BrandID:          "acme",
		CompetitorID:     "globex",
		RequestedSources: sources,
		CompletedSources: []model.SourceKind{},
		RemainingSources: append([]model.SourceKind(nil), sources...),
		Status:           model.JobStatusInProgress,
		Progress:         10,
		CreatedAt:        time.Now().UTC(),
	}
	return newJobState(j, nil)
}

func payloadFor(kind model.SourceKind) *model.SourcePayload {
	return &model.SourcePayload{Kind: kind, Provenance: model.ProvenanceLive}
}

func TestRecordCompletionRequiresBothSides(t *testing.T) {
	s := newTestState(model.SourceNews, model.SourceWebsite)

	snap := s.recordCompletion(sideBrand, model.SourceNews, payloadFor(model.SourceNews))
	assert.Nil(t, snap, "one-sided completion must not promote")

	snap = s.recordCompletion(sideCompetitor, model.SourceNews, payloadFor(model.SourceNews))
	require.NotNil(t, snap)
	assert.Equal(t, []model.SourceKind{model.SourceNews}, snap.CompletedSources)
	assert.Equal(t, []model.SourceKind{model.SourceWebsite}, snap.RemainingSources)
	assert.Equal(t, 55, snap.Progress)
}

func TestRecordCompletionDuplicateIgnored(t *testing.T) {
	s := newTestState(model.SourceNews)

	require.Nil(t, s.recordCompletion(sideBrand, model.SourceNews, payloadFor(model.SourceNews)))
	assert.Nil(t, s.recordCompletion(sideBrand, model.SourceNews, payloadFor(model.SourceNews)))

	snap := s.recordCompletion(sideCompetitor, model.SourceNews, payloadFor(model.SourceNews))
	require.NotNil(t, snap)
	assert.Equal(t, 100, snap.Progress)
}

func TestRecordCompletionAfterCancelIgnored(t *testing.T) {
	s := newTestState(model.SourceNews)
	require.Nil(t, s.recordCompletion(sideBrand, model.SourceNews, payloadFor(model.SourceNews)))

	require.True(t, s.markCancelled())

	assert.Nil(t, s.recordCompletion(sideCompetitor, model.SourceNews, payloadFor(model.SourceNews)))

	snap := s.snapshot()
	assert.Equal(t, model.JobStatusCancelled, snap.Status)
	assert.Empty(t, snap.CompletedSources)
	assert.Equal(t, []model.SourceKind{model.SourceNews}, snap.RemainingSources)
}

func TestProgressMonotonic(t *testing.T) {
	sources := model.AllSources()
	s := newTestState(sources...)

	want := []int{32, 55, 77, 100}
	for i, kind := range sources {
		require.Nil(t, s.recordCompletion(sideBrand, kind, payloadFor(kind)))
		snap := s.recordCompletion(sideCompetitor, kind, payloadFor(kind))
		require.NotNil(t, snap)
		assert.Equal(t, want[i], snap.Progress, kind)
	}
	assert.True(t, s.done())
}

func TestCompletedAndRemainingDisjoint(t *testing.T) {
	sources := model.AllSources()
	s := newTestState(sources...)

	for _, kind := range sources[:2] {
		s.recordCompletion(sideBrand, kind, payloadFor(kind))
		s.recordCompletion(sideCompetitor, kind, payloadFor(kind))
	}

	snap := s.snapshot()
	assert.Len(t, snap.CompletedSources, 2)
	assert.Len(t, snap.RemainingSources, 2)
	for _, kind := range snap.CompletedSources {
		assert.NotContains(t, snap.RemainingSources, kind)
	}
}

func TestMarkCancelledIdempotent(t *testing.T) {
	fired := 0
	s := newTestState(model.SourceNews)
	s.cancel = func() { fired++ }

	assert.True(t, s.markCancelled())
	assert.False(t, s.markCancelled())
	assert.Equal(t, 1, fired)
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestState(model.SourceNews, model.SourceWebsite)

	snap := s.snapshot()
	snap.RemainingSources[0] = model.SourceSocialMedia
	snap.Status = model.JobStatusFailed

	fresh := s.snapshot()
	assert.Equal(t, model.SourceNews, fresh.RemainingSources[0])
	assert.Equal(t, model.JobStatusInProgress, fresh.Status)
}

func TestBundlesCarryBothEntities(t *testing.T) {
	s := newTestState(model.SourceNews)
	s.recordCompletion(sideBrand, model.SourceNews, payloadFor(model.SourceNews))
	s.recordCompletion(sideCompetitor, model.SourceNews, payloadFor(model.SourceNews))

	brand, competitor := s.bundles()
	assert.Contains(t, brand, model.SourceNews)
	assert.Contains(t, competitor, model.SourceNews)
}
