package scrape

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SiteProfile declares how a known target site is fetched and which fields
// are extracted from it. Unknown sites fall back to a generic plain fetch.
type SiteProfile struct {
	Strategy      string      `yaml:"strategy"`
	AlternateHost string      `yaml:"alternate_host,omitempty"`
	RenderWaitMs  int         `yaml:"render_wait_ms,omitempty"`
	Selectors     SelectorMap `yaml:"selectors,omitempty"`
}

// SiteConfig is the full declarative scraping configuration.
type SiteConfig struct {
	Sites map[string]SiteProfile `yaml:"sites"`
}

// LoadSites reads site profiles from a YAML file.
func LoadSites(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: read site config %s", path)
	}
	var cfg SiteConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "scrape: parse site config")
	}
	// Host keys are matched case-insensitively.
	normalized := make(map[string]SiteProfile, len(cfg.Sites))
	for host, p := range cfg.Sites {
		normalized[strings.ToLower(host)] = p
	}
	cfg.Sites = normalized
	return &cfg, nil
}

// DefaultSites returns the built-in site profiles used when no config file
// is provided. Strategy choice is static per known site.
func DefaultSites() *SiteConfig {
	return &SiteConfig{
		Sites: map[string]SiteProfile{
			"glassdoor.com": {
				Strategy:     StrategyRendered,
				RenderWaitMs: 2500,
				Selectors: SelectorMap{
					"rating":       {`[data-test="rating-headline"]`, ".rating-headline"},
					"review_count": {`[data-test="review-count"]`},
					"recommend":    {`[data-test="recommend-to-friend"]`},
				},
			},
			"indeed.com": {
				Strategy: StrategyPlain,
				Selectors: SelectorMap{
					"rating":       {`[data-testid="rating-number"]`, ".css-rating"},
					"review_count": {`[data-testid="review-count"]`},
				},
			},
			"x.com": {
				Strategy:      StrategyAlternate,
				AlternateHost: "mobile.x.com",
				Selectors: SelectorMap{
					"followers": {`a[href$="/followers"] span`, ".followers-count"},
					"posts":     {`[data-testid="posts-count"]`},
				},
			},
			"reddit.com": {
				Strategy:      StrategyAlternate,
				AlternateHost: "old.reddit.com",
				Selectors: SelectorMap{
					"subscribers": {".subscribers .number"},
					"active":      {".users-online .number"},
				},
			},
			"trustpilot.com": {
				Strategy: StrategyPlain,
				Selectors: SelectorMap{
					"rating":       {`[data-rating-typography]`, ".star-rating + p"},
					"review_count": {`[data-reviews-count-typography]`},
				},
			},
		},
	}
}

// ProfileFor matches a host against the configured sites, trying the exact
// host first and then parent-domain suffixes ("www.glassdoor.com" matches
// the "glassdoor.com" profile).
func (c *SiteConfig) ProfileFor(host string) (SiteProfile, bool) {
	host = strings.ToLower(host)
	if p, ok := c.Sites[host]; ok {
		return p, true
	}
	for candidate := host; ; {
		i := strings.Index(candidate, ".")
		if i < 0 {
			break
		}
		candidate = candidate[i+1:]
		if p, ok := c.Sites[candidate]; ok {
			return p, true
		}
	}
	return SiteProfile{}, false
}
