package scrape

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrBlocked marks content rejected by block detection. A blocked result is
// treated exactly like a request failure: it must never surface as a
// successful payload with empty data.
var ErrBlocked = eris.New("scrape: content blocked")

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockThinPage   BlockType = "thin_page"
)

// BlockDetector checks responses for signs of anti-bot protection. The
// thresholds are tunable: they are heuristics, not validated invariants.
type BlockDetector struct {
	// MinContentBytes is the body size below which a page with no real text
	// is considered implausibly short. Default: 2000.
	MinContentBytes int
}

// NewBlockDetector creates a detector with the given minimum content size;
// zero selects the default.
func NewBlockDetector(minContentBytes int) *BlockDetector {
	if minContentBytes <= 0 {
		minContentBytes = 2000
	}
	return &BlockDetector{MinContentBytes: minContentBytes}
}

// Detect checks a response and body for block markers. resp may be nil for
// content obtained outside a plain HTTP round trip (e.g. a rendered page).
func (d *BlockDetector) Detect(resp *http.Response, body []byte) (bool, BlockType) {
	if resp != nil && (resp.StatusCode == 403 || resp.StatusCode == 503) {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" {
			return true, BlockCloudflare
		}
		if resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "are you a robot") ||
		strings.Contains(lower, "unusual traffic") {
		return true, BlockCaptcha
	}

	if len(body) < d.MinContentBytes {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "access denied") || strings.Contains(lower, "request blocked") {
			return true, BlockThinPage
		}
	}

	return false, BlockNone
}
