package collector

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/scrape"
)

// techMarkers are stack hints that nudge the website quality score upward.
var techMarkers = []string{
	"react", "next.js", "vue", "angular", "kubernetes", "graphql",
	"webflow", "shopify", "hubspot", "salesforce", "intercom", "segment",
}

// WebsiteCollector probes an entity's own website and derives a quality
// score from reachability, content depth, and freshness signals.
type WebsiteCollector struct {
	Engine *scrape.Engine
	now    func() time.Time
}

// NewWebsiteCollector creates a website quality collector.
func NewWebsiteCollector(engine *scrape.Engine) *WebsiteCollector {
	return &WebsiteCollector{Engine: engine, now: time.Now}
}

func (c *WebsiteCollector) Kind() model.SourceKind { return model.SourceWebsite }

func (c *WebsiteCollector) Collect(ctx context.Context, entityID, areaID string) (*model.SourcePayload, error) {
	domain := domainFor(entityID)
	page, err := c.Engine.Fetch(ctx, "https://"+domain)
	if err != nil {
		return nil, eris.Wrapf(err, "website: probe %s", domain)
	}

	quality, metrics := c.analyze(page)
	metrics["quality_score"] = quality

	return &model.SourcePayload{
		Kind:        model.SourceWebsite,
		Sentiment:   clamp((quality - 50) / 50),
		Mentions:    1,
		Metrics:     metrics,
		Provenance:  model.ProvenanceLive,
		CollectedAt: c.now(),
	}, nil
}

// analyze scores a homepage on a 0..100 scale. The weights are heuristics
// tuned on a handful of real brand sites, not a calibrated model.
func (c *WebsiteCollector) analyze(page *scrape.Page) (float64, map[string]float64) {
	lower := strings.ToLower(page.HTML)
	metrics := map[string]float64{}

	quality := 40.0

	// Content depth.
	textLen := len(textExcerpt(page.HTML, 1<<20))
	metrics["content_chars"] = float64(textLen)
	switch {
	case textLen > 8000:
		quality += 20
	case textLen > 2000:
		quality += 12
	case textLen > 500:
		quality += 5
	}

	var tech float64
	for _, marker := range techMarkers {
		if strings.Contains(lower, marker) {
			tech++
		}
	}
	metrics["tech_mentions"] = tech
	if tech > 3 {
		tech = 3
	}
	quality += tech * 4

	if strings.Contains(lower, "/team") || strings.Contains(lower, "/about") ||
		strings.Contains(lower, ">our team<") {
		metrics["team_page"] = 1
		quality += 8
	}
	if strings.Contains(lower, "/blog") || strings.Contains(lower, "/news") {
		metrics["has_blog"] = 1
		quality += 8
		if freshness := blogFreshness(lower, c.now()); freshness > 0 {
			metrics["blog_fresh"] = 1
			quality += 6
		}
	}
	if strings.Contains(lower, "https://") && strings.Contains(lower, "privacy") {
		quality += 4
	}

	if quality > 100 {
		quality = 100
	}
	return quality, metrics
}

// blogFreshness looks for the current or previous year near blog/news
// markup as a cheap recency signal.
func blogFreshness(lower string, now time.Time) float64 {
	thisYear := now.UTC().Format("2006")
	lastYear := now.UTC().AddDate(-1, 0, 0).Format("2006")
	if strings.Contains(lower, thisYear) {
		return 2
	}
	if strings.Contains(lower, lastYear) {
		return 1
	}
	return 0
}

func (c *WebsiteCollector) Mock(entityID string) *model.SourcePayload {
	return mockPayload(model.SourceWebsite, entityID, c.now())
}
