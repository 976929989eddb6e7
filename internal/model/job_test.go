package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSource(t *testing.T) {
	for _, kind := range AllSources() {
		assert.True(t, ValidSource(kind), kind)
	}
	assert.False(t, ValidSource("fax_machine"))
	assert.False(t, ValidSource(""))
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusStarted.Terminal())
	assert.False(t, JobStatusInProgress.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestPromoteSourceProgress(t *testing.T) {
	j := &CollectionJob{
		RequestedSources: []SourceKind{SourceNews, SourceSocialMedia, SourceWebsite},
		CompletedSources: []SourceKind{},
		RemainingSources: []SourceKind{SourceNews, SourceSocialMedia, SourceWebsite},
		Progress:         10,
	}

	j.PromoteSource(SourceNews)
	assert.Equal(t, 40, j.Progress)
	assert.True(t, j.HasCompleted(SourceNews))

	// Promoting a source that is not remaining changes nothing.
	j.PromoteSource(SourceNews)
	assert.Equal(t, 40, j.Progress)
	assert.Len(t, j.CompletedSources, 1)

	j.PromoteSource(SourceSocialMedia)
	assert.Equal(t, 70, j.Progress)

	j.PromoteSource(SourceWebsite)
	assert.Equal(t, 100, j.Progress)
	assert.Empty(t, j.RemainingSources)
}
