package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/request"
	"github.com/brandscope/intel-cli/internal/resilience"
)

// Engine selects a fetch strategy per target site and extracts structured
// fields via the site's declarative selector map. Each target host gets its
// own circuit breaker so one flaky site cannot stall a whole job.
type Engine struct {
	requester *request.Requester
	detector  *BlockDetector
	sites     *SiteConfig
	userAgent string
	circuit   resilience.CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// NewEngine creates an Engine. A nil sites config selects DefaultSites.
func NewEngine(req *request.Requester, detector *BlockDetector, sites *SiteConfig, circuit resilience.CircuitBreakerConfig) *Engine {
	if sites == nil {
		sites = DefaultSites()
	}
	if detector == nil {
		detector = NewBlockDetector(0)
	}
	return &Engine{
		requester: req,
		detector:  detector,
		sites:     sites,
		userAgent: "Mozilla/5.0 (compatible; intel-cli/1.0)",
		circuit:   circuit,
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
}

func (e *Engine) breakerFor(host string) *resilience.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[host]; ok {
		return cb
	}
	cb := resilience.NewCircuitBreaker(e.circuit)
	e.breakers[host] = cb
	return cb
}

// strategyFor resolves the fetch strategy for a profile. Unknown sites get
// a generic plain fetch.
func (e *Engine) strategyFor(profile SiteProfile) Strategy {
	switch profile.Strategy {
	case StrategyAlternate:
		// Rewrites are keyed per request host at fetch time.
		return &AlternateFetch{
			Requester: e.requester,
			Detector:  e.detector,
		}
	case StrategyRendered:
		return &RenderedFetch{
			Detector:  e.detector,
			Wait:      time.Duration(profile.RenderWaitMs) * time.Millisecond,
			UserAgent: e.userAgent,
		}
	default:
		return &PlainFetch{Requester: e.requester, Detector: e.detector}
	}
}

// Fetch retrieves rawURL using the strategy configured for its site.
func (e *Engine) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	host := request.HostOf(rawURL)
	profile, known := e.sites.ProfileFor(host)

	strategy := e.strategyFor(profile)
	if alt, ok := strategy.(*AlternateFetch); ok {
		alt.Rewrites = map[string]string{host: profile.AlternateHost}
	}

	var page *Page
	err := e.breakerFor(host).Execute(ctx, func(ctx context.Context) error {
		p, fetchErr := strategy.Fetch(ctx, rawURL)
		if fetchErr != nil {
			return fetchErr
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("scrape: fetched",
		zap.String("url", rawURL),
		zap.String("strategy", strategy.Name()),
		zap.Bool("known_site", known),
		zap.Int("bytes", len(page.HTML)),
	)
	return page, nil
}

// FetchFields fetches rawURL and applies the site's selector map, returning
// a flat field map. Sites without selectors yield an empty map.
func (e *Engine) FetchFields(ctx context.Context, rawURL string) (map[string]string, *Page, error) {
	page, err := e.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	host := request.HostOf(rawURL)
	profile, _ := e.sites.ProfileFor(host)
	if len(profile.Selectors) == 0 {
		return map[string]string{}, page, nil
	}

	fields, err := Extract(page, profile.Selectors)
	if err != nil {
		return nil, page, eris.Wrapf(err, "scrape: extract fields from %s", rawURL)
	}
	return fields, page, nil
}
