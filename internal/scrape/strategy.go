// Package scrape implements strategy-based fetching and declarative field
// extraction for signal sources that expose no structured API.
package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/request"
)

// Page holds fetched content ready for extraction.
type Page struct {
	URL        string
	HTML       string
	StatusCode int
}

// Strategy fetches a single URL. Implementations differ in how they reach
// the target: direct, via a simpler alternate endpoint, or through a
// headless browser for script-only sites.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Strategy names, referenced from site profile config.
const (
	StrategyPlain     = "plain"
	StrategyAlternate = "alternate"
	StrategyRendered  = "rendered"
)

// PlainFetch issues a direct GET through the resilient requester.
type PlainFetch struct {
	Requester *request.Requester
	Detector  *BlockDetector
}

func (p *PlainFetch) Name() string { return StrategyPlain }

func (p *PlainFetch) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	body, resp, err := p.Requester.GetResponse(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if blocked, bt := p.Detector.Detect(resp, body); blocked {
		return nil, eris.Wrapf(ErrBlocked, "scrape: %s blocked (%s)", rawURL, bt)
	}
	return &Page{URL: rawURL, HTML: string(body), StatusCode: resp.StatusCode}, nil
}

// AlternateFetch rewrites the host to a known alternate endpoint (typically
// a mobile host serving simpler markup) before fetching.
type AlternateFetch struct {
	Requester *request.Requester
	Detector  *BlockDetector
	// Rewrites maps a canonical host to its alternate host.
	Rewrites map[string]string
}

func (a *AlternateFetch) Name() string { return StrategyAlternate }

func (a *AlternateFetch) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse url %s", rawURL)
	}
	if alt, ok := a.Rewrites[strings.ToLower(u.Hostname())]; ok {
		u.Host = alt
	}

	plain := &PlainFetch{Requester: a.Requester, Detector: a.Detector}
	page, err := plain.Fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}
	// Report the original URL so extraction results stay keyed to it.
	page.URL = rawURL
	return page, nil
}

// RenderedFetch drives a headless browser for sites that only produce
// content after script execution.
type RenderedFetch struct {
	Detector *BlockDetector
	// Wait is how long to let scripts settle after navigation.
	Wait time.Duration
	// UserAgent is sent to the target site.
	UserAgent string

	// runFn is swappable in tests to avoid launching a browser.
	runFn func(ctx context.Context, rawURL string, wait time.Duration, userAgent string) (string, error)
}

func (r *RenderedFetch) Name() string { return StrategyRendered }

func (r *RenderedFetch) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	wait := r.Wait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	run := r.runFn
	if run == nil {
		run = renderPage
	}

	html, err := run(ctx, rawURL, wait, r.UserAgent)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: rendered fetch %s", rawURL)
	}
	if blocked, bt := r.Detector.Detect(nil, []byte(html)); blocked {
		return nil, eris.Wrapf(ErrBlocked, "scrape: %s blocked after render (%s)", rawURL, bt)
	}
	return &Page{URL: rawURL, HTML: html, StatusCode: 200}, nil
}

func renderPage(ctx context.Context, rawURL string, wait time.Duration, userAgent string) (string, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(wait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	zap.L().Debug("scrape: rendered page",
		zap.String("url", rawURL),
		zap.Int("bytes", len(html)),
	)
	return html, nil
}
