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

// ReviewsCollector scrapes employer review sites (Glassdoor, Indeed) for
// workplace rating signals. These sites block aggressively, so a failed or
// blocked fetch is the expected path and the runner falls back to Mock.
type ReviewsCollector struct {
	Engine *scrape.Engine
	now    func() time.Time
}

// NewReviewsCollector creates an employer reviews collector.
func NewReviewsCollector(engine *scrape.Engine) *ReviewsCollector {
	return &ReviewsCollector{Engine: engine, now: time.Now}
}

func (c *ReviewsCollector) Kind() model.SourceKind { return model.SourceEmployerReviews }

func (c *ReviewsCollector) Collect(ctx context.Context, entityID, areaID string) (*model.SourcePayload, error) {
	slug := slugify(entityID)
	targets := []string{
		fmt.Sprintf("https://www.glassdoor.com/Reviews/%s-reviews.htm", slug),
		fmt.Sprintf("https://www.indeed.com/cmp/%s/reviews", slug),
	}

	var lastErr error
	for _, target := range targets {
		fields, _, err := c.Engine.FetchFields(ctx, target)
		if err != nil {
			zap.L().Debug("reviews: target failed",
				zap.String("entity", entityID),
				zap.String("url", target),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		rating, ok := scrape.ParseMetric(fields["rating"])
		if !ok {
			lastErr = eris.Errorf("reviews: no rating found at %s", target)
			continue
		}

		metrics := map[string]float64{"rating": rating}
		mentions := 0
		if count, ok := scrape.ParseMetric(fields["review_count"]); ok {
			metrics["review_count"] = count
			mentions = int(count)
		}
		if rec, ok := scrape.ParseMetric(fields["recommend"]); ok {
			metrics["recommend_pct"] = rec
		}

		return &model.SourcePayload{
			Kind: model.SourceEmployerReviews,
			// A 1..5 star rating maps linearly onto the sentiment axis.
			Sentiment:   clamp((rating - 3.0) / 2.0),
			Mentions:    mentions,
			Metrics:     metrics,
			Provenance:  model.ProvenanceLive,
			CollectedAt: c.now(),
		}, nil
	}

	return nil, eris.Wrapf(lastErr, "reviews: all targets failed for %s", entityID)
}

func (c *ReviewsCollector) Mock(entityID string) *model.SourcePayload {
	return mockPayload(model.SourceEmployerReviews, entityID, c.now())
}
