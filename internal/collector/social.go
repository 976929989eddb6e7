package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/scrape"
)

// SocialCollector scrapes public social platform pages for follower and
// engagement signals. The platforms have no usable free API, so everything
// goes through the strategy engine.
type SocialCollector struct {
	Engine *scrape.Engine
	Scorer *ScorerChain
	now    func() time.Time
}

// NewSocialCollector creates a social media collector.
func NewSocialCollector(engine *scrape.Engine, scorer *ScorerChain) *SocialCollector {
	return &SocialCollector{Engine: engine, Scorer: scorer, now: time.Now}
}

func (c *SocialCollector) Kind() model.SourceKind { return model.SourceSocialMedia }

func (c *SocialCollector) Collect(ctx context.Context, entityID, areaID string) (*model.SourcePayload, error) {
	slug := slugify(entityID)
	targets := []string{
		fmt.Sprintf("https://x.com/%s", slug),
		fmt.Sprintf("https://www.reddit.com/search/?q=%s", slug),
	}

	metrics := map[string]float64{}
	var texts []string
	var samples []model.SignalSample
	hits := 0

	for _, target := range targets {
		fields, page, err := c.Engine.FetchFields(ctx, target)
		if err != nil {
			zap.L().Debug("social: target failed",
				zap.String("entity", entityID),
				zap.String("url", target),
				zap.Error(err),
			)
			continue
		}
		hits++

		for name, raw := range fields {
			if v, ok := scrape.ParseMetric(raw); ok {
				metrics[name] = v
			}
		}
		if excerpt := textExcerpt(page.HTML, 2000); excerpt != "" {
			texts = append(texts, excerpt)
		}
		samples = append(samples, model.SignalSample{
			Title: entityID + " social profile",
			URL:   target,
		})
	}

	if hits == 0 {
		return nil, eris.Errorf("social: all targets failed for %s", entityID)
	}

	mentions := int(metrics["posts"])
	if mentions == 0 {
		mentions = hits
	}

	return &model.SourcePayload{
		Kind:        model.SourceSocialMedia,
		Sentiment:   c.Scorer.Score(ctx, texts),
		Mentions:    mentions,
		Samples:     samples,
		Metrics:     metrics,
		Provenance:  model.ProvenanceLive,
		CollectedAt: c.now(),
	}, nil
}

func (c *SocialCollector) Mock(entityID string) *model.SourcePayload {
	return mockPayload(model.SourceSocialMedia, entityID, c.now())
}
