package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/collector"
	"github.com/brandscope/intel-cli/internal/job"
	"github.com/brandscope/intel-cli/internal/ledger"
	"github.com/brandscope/intel-cli/internal/model"
	"github.com/brandscope/intel-cli/internal/request"
	"github.com/brandscope/intel-cli/internal/resilience"
	"github.com/brandscope/intel-cli/internal/scrape"
	"github.com/brandscope/intel-cli/internal/store"
	anthropicpkg "github.com/brandscope/intel-cli/pkg/anthropic"
	"github.com/brandscope/intel-cli/pkg/newsfeed"
)

// appEnv holds the initialized store, ledger, and job manager shared by the
// serve/collect/jobs commands.
type appEnv struct {
	Store   store.Store
	Elastic *store.ElasticIndex // may be nil
	Ledger  *ledger.Ledger
	Runner  *collector.Runner
	Manager *job.Manager
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp sets up the store, the scrape/collect stack, and the job manager.
// Callers should defer env.Close().
func initApp(ctx context.Context) (*appEnv, error) {
	primary, err := initPrimaryStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := primary.Migrate(ctx); err != nil {
		_ = primary.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var elastic *store.ElasticIndex
	if cfg.Elastic.Enabled {
		elastic, err = store.NewElasticIndex(cfg.Elastic.Addresses, cfg.Elastic.APIKey)
		if err != nil {
			// Secondary index is best-effort even at startup.
			zap.L().Warn("elastic init failed, continuing without search index", zap.Error(err))
			elastic = nil
		} else if err := elastic.EnsureIndices(ctx); err != nil {
			zap.L().Warn("elastic index setup failed, continuing without search index", zap.Error(err))
			elastic = nil
		}
	}

	var st store.Store = primary
	if elastic != nil {
		st = store.NewDual(primary, elastic)
	}

	requester := request.New(request.Options{
		UserAgent:      cfg.Request.UserAgent,
		Timeout:        time.Duration(cfg.Request.TimeoutSecs) * time.Second,
		MaxRetries:     cfg.Request.MaxRetries,
		RateLimits:     cfg.Request.RateLimits,
		DefaultRate:    cfg.Request.DefaultRate,
		TLSBypassHosts: cfg.Request.TLSBypassHosts,
	})

	sites := scrape.DefaultSites()
	if cfg.Scrape.SitesPath != "" {
		sites, err = scrape.LoadSites(cfg.Scrape.SitesPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load site profiles")
		}
	}

	engine := scrape.NewEngine(requester,
		scrape.NewBlockDetector(cfg.Scrape.MinContentBytes),
		sites,
		resilience.FromCircuitConfig(cfg.Scrape.BreakerFailures, cfg.Scrape.BreakerResetSec))

	scorer := initScorer()

	feedOpts := []newsfeed.Option{}
	if cfg.Collect.NewsFeedURL != "" {
		feedOpts = append(feedOpts, newsfeed.WithBaseURL(cfg.Collect.NewsFeedURL))
	}
	if cfg.Collect.NewsLanguage != "" {
		feedOpts = append(feedOpts, newsfeed.WithLanguage(cfg.Collect.NewsLanguage, "US"))
	}
	feed := newsfeed.NewClient(requester, feedOpts...)

	runner := collector.NewRunner(
		collector.NewNewsCollector(feed, scorer),
		collector.NewSocialCollector(engine, scorer),
		collector.NewReviewsCollector(engine),
		collector.NewWebsiteCollector(engine),
	)
	runner.MaxConcurrent = cfg.Collect.MaxConcurrentSources

	led := ledger.New(cfg.Ledger.Path)

	var trigger job.AnalysisTrigger
	if cfg.Analysis.WebhookURL != "" {
		trigger = job.NewWebhookTrigger(cfg.Analysis.WebhookURL)
	} else {
		zap.L().Debug("no analysis webhook configured, completed jobs will not be handed off")
	}

	mgr := job.NewManager(st, led, runner, trigger)
	if cfg.Collect.PerSourceEstimateSecs > 0 {
		mgr.PerSourceEstimate = time.Duration(cfg.Collect.PerSourceEstimateSecs) * time.Second
	}
	if len(cfg.Collect.DefaultSources) > 0 {
		defaults, err := parseSources(cfg.Collect.DefaultSources)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "collect.default_sources")
		}
		mgr.DefaultSources = defaults
	}

	return &appEnv{
		Store:   st,
		Elastic: elastic,
		Ledger:  led,
		Runner:  runner,
		Manager: mgr,
	}, nil
}

func initPrimaryStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initScorer builds the sentiment chain: the LLM scorer when configured,
// always backed by the lexical heuristic.
func initScorer() *collector.ScorerChain {
	if cfg.Sentiment.AnthropicKey == "" {
		zap.L().Debug("BRANDSCOPE_SENTIMENT_ANTHROPIC_KEY not set, using lexical sentiment only")
		return collector.NewScorerChain()
	}
	return collector.NewScorerChain(&collector.AnthropicScorer{
		Client: anthropicpkg.NewClient(cfg.Sentiment.AnthropicKey),
		Model:  cfg.Sentiment.AnthropicModel,
	})
}

// parseSources converts CLI/config source names, rejecting unknown kinds.
func parseSources(names []string) ([]model.SourceKind, error) {
	if len(names) == 0 {
		return nil, nil
	}
	kinds := make([]model.SourceKind, 0, len(names))
	for _, n := range names {
		k := model.SourceKind(n)
		if !model.ValidSource(k) {
			return nil, eris.Errorf("unknown source %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
