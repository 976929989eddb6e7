package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandscope/intel-cli/internal/model"
)

func TestMockPayloadDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	a := mockPayload(model.SourceSocialMedia, "Acme Corp", now)
	b := mockPayload(model.SourceSocialMedia, "Acme Corp", now)

	assert.Equal(t, a.Sentiment, b.Sentiment)
	assert.Equal(t, a.Mentions, b.Mentions)
	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.Samples, b.Samples)
}

func TestMockPayloadVariesByEntity(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	a := mockPayload(model.SourceSocialMedia, "Acme Corp", now)
	b := mockPayload(model.SourceSocialMedia, "Globex", now)

	// Stable traits are seeded from the entity, so distinct entities get
	// distinct follower bases.
	assert.NotEqual(t, a.Metrics["followers"], b.Metrics["followers"])
}

func TestMockPayloadStableTraitsSurviveDateChange(t *testing.T) {
	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	a := mockPayload(model.SourceEmployerReviews, "Acme Corp", day1)
	b := mockPayload(model.SourceEmployerReviews, "Acme Corp", day2)

	assert.Equal(t, a.Metrics["rating"], b.Metrics["rating"])
	assert.Equal(t, a.Metrics["review_count"], b.Metrics["review_count"])
}

func TestMockPayloadDailyTraitsDrift(t *testing.T) {
	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

	a := mockPayload(model.SourceNews, "Acme Corp", day1)
	b := mockPayload(model.SourceNews, "Acme Corp", day2)

	// Sentiment and mention counts fold in the date; two different days
	// agreeing on both would be a seeding bug, not a coincidence.
	drifted := a.Sentiment != b.Sentiment || a.Mentions != b.Mentions
	assert.True(t, drifted, "daily traits did not drift across dates")
}

func TestMockPayloadShape(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for _, kind := range model.AllSources() {
		p := mockPayload(kind, "Acme Corp", now)

		require.NotNil(t, p, kind)
		assert.Equal(t, kind, p.Kind)
		assert.Equal(t, model.ProvenanceFallbackEstimated, p.Provenance)
		assert.Equal(t, now, p.CollectedAt)
		assert.GreaterOrEqual(t, p.Sentiment, -1.0)
		assert.LessOrEqual(t, p.Sentiment, 1.0)
		assert.Greater(t, p.Mentions, 0)
		assert.NotEmpty(t, p.Metrics)
	}
}

func TestMockPayloadReviewsSentimentTracksRating(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	p := mockPayload(model.SourceEmployerReviews, "Acme Corp", now)

	want := round2((p.Metrics["rating"] - 3.0) / 2.0)
	assert.Equal(t, want, p.Sentiment)
}
