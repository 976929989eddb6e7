package collector

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/brandscope/intel-cli/internal/model"
)

// mockRand returns a PRNG seeded from the given parts. The same parts always
// produce the same stream, which keeps fallback data stable across calls.
func mockRand(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// dayStamp pins daily-varying mock fields to the current UTC date.
func dayStamp(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// mockPayload generates a deterministic synthetic payload for one source
// kind. Stable traits (follower counts, ratings) are seeded from the entity
// alone; volatile traits (sentiment, mention counts) also fold in the date
// so fallback data drifts day to day like live data would.
func mockPayload(kind model.SourceKind, entityID string, now time.Time) *model.SourcePayload {
	stable := mockRand(string(kind), entityID)
	daily := mockRand(string(kind), entityID, dayStamp(now))

	p := &model.SourcePayload{
		Kind:        kind,
		Sentiment:   round2(daily.Float64()*1.2 - 0.3), // skew mildly positive
		Metrics:     map[string]float64{},
		Provenance:  model.ProvenanceFallbackEstimated,
		CollectedAt: now,
	}

	switch kind {
	case model.SourceNews:
		p.Mentions = 5 + daily.IntN(75)
		p.Metrics["articles_7d"] = float64(1 + daily.IntN(20))
		p.Samples = mockSamples(entityID, "news", daily, 3)
	case model.SourceSocialMedia:
		p.Mentions = 20 + daily.IntN(400)
		p.Metrics["followers"] = float64(1_000 + stable.IntN(2_000_000))
		p.Metrics["engagement_rate"] = round2(0.5 + daily.Float64()*4.5)
		p.Samples = mockSamples(entityID, "post", daily, 3)
	case model.SourceEmployerReviews:
		rating := round2(2.4 + stable.Float64()*2.2)
		p.Sentiment = round2((rating - 3.0) / 2.0)
		p.Mentions = 10 + stable.IntN(5_000)
		p.Metrics["rating"] = rating
		p.Metrics["review_count"] = float64(p.Mentions)
	case model.SourceWebsite:
		quality := float64(35 + stable.IntN(60))
		p.Sentiment = round2((quality - 50) / 50)
		p.Mentions = 1
		p.Metrics["quality_score"] = quality
		p.Metrics["pages_analyzed"] = float64(1 + stable.IntN(12))
	}

	if p.Sentiment > 1 {
		p.Sentiment = 1
	}
	if p.Sentiment < -1 {
		p.Sentiment = -1
	}
	return p
}

func mockSamples(entityID, noun string, rng *rand.Rand, n int) []model.SignalSample {
	samples := make([]model.SignalSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, model.SignalSample{
			Title:     fmt.Sprintf("%s %s #%d", entityID, noun, i+1),
			Sentiment: round2(rng.Float64()*2 - 1),
		})
	}
	return samples
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}
