package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/pkg/newsfeed"
)

// maxNewsSamples caps how many articles are carried in the payload.
const maxNewsSamples = 10

// NewsCollector gathers recent press coverage from an RSS news search feed.
type NewsCollector struct {
	Feed   newsfeed.Client
	Scorer *ScorerChain
	now    func() time.Time
}

// NewNewsCollector creates a news collector.
func NewNewsCollector(feed newsfeed.Client, scorer *ScorerChain) *NewsCollector {
	return &NewsCollector{Feed: feed, Scorer: scorer, now: time.Now}
}

func (c *NewsCollector) Kind() model.SourceKind { return model.SourceNews }

func (c *NewsCollector) Collect(ctx context.Context, entityID, areaID string) (*model.SourcePayload, error) {
	query := fmt.Sprintf("%q", entityID)
	if areaID != "" {
		query += " " + areaID
	}

	items, err := c.Feed.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "news: search %s", entityID)
	}
	if len(items) == 0 {
		// Nothing usable upstream: estimated fallback rather than an empty
		// payload, so comparisons never see a zeroed source.
		zap.L().Info("news: no articles found, using estimated fallback",
			zap.String("entity", entityID),
		)
		p := c.Mock(entityID)
		p.Provenance = model.ProvenanceFallbackEstimated
		return p, nil
	}

	now := c.now()
	var texts []string
	var articles7d int
	samples := make([]model.SignalSample, 0, maxNewsSamples)
	for i, item := range items {
		texts = append(texts, item.Title+" "+item.Snippet)
		if !item.Published.IsZero() && now.Sub(item.Published) <= 7*24*time.Hour {
			articles7d++
		}
		if i < maxNewsSamples {
			samples = append(samples, model.SignalSample{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: item.Snippet,
			})
		}
	}

	return &model.SourcePayload{
		Kind:      model.SourceNews,
		Sentiment: c.Scorer.Score(ctx, texts),
		Mentions:  len(items),
		Samples:   samples,
		Metrics: map[string]float64{
			"articles_7d": float64(articles7d),
		},
		Provenance:  model.ProvenanceLive,
		CollectedAt: now,
	}, nil
}

func (c *NewsCollector) Mock(entityID string) *model.SourcePayload {
	return mockPayload(model.SourceNews, entityID, c.now())
}
