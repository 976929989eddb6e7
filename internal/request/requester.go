// Package request provides the shared resilient HTTP execution policy used
// by every signal collector: per-host rate limiting, retry with exponential
// backoff, status-code classification, and a TLS-bypass allowlist for
// domains with known-broken certificates.
package request

import (
	"context"
	"crypto/tls"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandscope/intel-cli/internal/resilience"
)

// maxBodyBytes caps how much of an upstream response is read into memory.
const maxBodyBytes = 4 << 20

// Options configures the Requester.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RateLimits maps host to requests-per-second. Hosts not listed get
	// DefaultRate.
	RateLimits  map[string]float64
	DefaultRate float64
	// TLSBypassHosts lists domains whose broken certificates are tolerated:
	// a certificate failure against one of these hosts re-issues the request
	// once with verification disabled for that call only.
	TLSBypassHosts []string
}

// Requester executes upstream HTTP calls under the shared resilience policy.
// One instance is shared by every collector goroutine.
type Requester struct {
	client   *http.Client
	insecure *http.Client
	opts     Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Requester with the given options.
func New(opts Options) *Requester {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "intel-cli/1.0"
	}
	if opts.DefaultRate <= 0 {
		opts.DefaultRate = 5
	}

	limiters := make(map[string]*rate.Limiter)
	for host, rps := range opts.RateLimits {
		burst := int(math.Ceil(rps))
		if burst < 1 {
			burst = 1
		}
		limiters[host] = rate.NewLimiter(rate.Limit(rps), burst)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	insecureTransport := transport.Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

	return &Requester{
		client:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		insecure: &http.Client{Timeout: opts.Timeout, Transport: insecureTransport},
		opts:     opts,
		limiters: limiters,
	}
}

func (r *Requester) limiterFor(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lim, ok := r.limiters[host]; ok {
		return lim
	}
	burst := int(math.Ceil(r.opts.DefaultRate))
	if burst < 1 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(r.opts.DefaultRate), burst)
	r.limiters[host] = lim
	return lim
}

func (r *Requester) bypassAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, h := range r.opts.TLSBypassHosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Do executes req with rate limiting and retries. Auth failures (401/403)
// return after one attempt; 429 honors the server's Retry-After hint; 408
// and 5xx retry with exponential backoff. Certificate failures against an
// allowlisted host re-issue the same attempt without verification.
func (r *Requester) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.opts.UserAgent)
	}
	host := req.URL.Host

	cfg := resilience.RetryConfig{
		MaxAttempts:    r.opts.MaxRetries,
		InitialBackoff: time.Second,
		OnRetry:        resilience.RetryLogger(host, req.Method+" "+req.URL.Path),
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*http.Response, error) {
		if err := r.limiterFor(host).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "request: rate limiter wait")
		}
		return r.attempt(ctx, req)
	})
}

// attempt performs one request cycle, including the single TLS-bypass
// re-issue for allowlisted hosts.
func (r *Requester) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := r.client.Do(req.Clone(ctx))
	if err != nil {
		if resilience.IsCertError(err) && r.bypassAllowed(req.URL.Hostname()) {
			zap.L().Warn("request: certificate failure on allowlisted host, bypassing verification",
				zap.String("host", req.URL.Hostname()),
			)
			resp, err = r.insecure.Do(req.Clone(ctx))
		}
		if err != nil {
			return nil, eris.Wrapf(err, "request: %s %s", req.Method, req.URL)
		}
	}
	return classify(resp)
}

// classify converts error statuses into the resilience taxonomy, closing the
// body for non-success responses.
func classify(resp *http.Response) (*http.Response, error) {
	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		_ = resp.Body.Close()
		return nil, resilience.NewAuthError(
			eris.Errorf("request: http %d from %s", status, resp.Request.URL), status)
	case status == http.StatusTooManyRequests:
		hint := parseRetryAfter(resp.Header.Get("Retry-After"))
		_ = resp.Body.Close()
		return nil, resilience.NewRateLimitError(
			eris.Errorf("request: http 429 from %s", resp.Request.URL), hint)
	case resilience.IsTransientHTTPStatus(status):
		_ = resp.Body.Close()
		return nil, resilience.NewTransientError(
			eris.Errorf("request: http %d from %s", status, resp.Request.URL), status)
	case status >= 400:
		_ = resp.Body.Close()
		return nil, eris.Errorf("request: http %d from %s", status, resp.Request.URL)
	}
	return resp, nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Get fetches rawURL and returns the response body, capped at maxBodyBytes.
func (r *Requester) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "request: create request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "request: read body from %s", rawURL)
	}
	return body, nil
}

// GetResponse fetches rawURL and returns both the capped body and the
// response metadata (headers, status) for block detection.
func (r *Requester) GetResponse(ctx context.Context, rawURL string, headers map[string]string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "request: create request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.Do(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp, eris.Wrapf(err, "request: read body from %s", rawURL)
	}
	return body, resp, nil
}

// HostOf extracts the host from a raw URL, or returns the input unchanged if
// it does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
