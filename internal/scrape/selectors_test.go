package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profileHTML = `
<html><body>
  <div class="header">
    <span data-testid="rating-number">4.2</span>
    <a href="/acme/followers"><span>12.5K</span></a>
    <img class="logo" src="/logo.png" alt="Acme logo">
  </div>
  <div class="reviews">
    <span data-testid="review-count">3,412 reviews</span>
  </div>
</body></html>`

func TestExtract_FirstMatchWins(t *testing.T) {
	page := &Page{URL: "https://example.com", HTML: profileHTML}

	fields, err := Extract(page, SelectorMap{
		"rating":    {".missing-selector", `[data-testid="rating-number"]`},
		"followers": {`a[href$="/followers"] span`},
		"absent":    {".nope", "#also-nope"},
	})
	require.NoError(t, err)

	assert.Equal(t, "4.2", fields["rating"])
	assert.Equal(t, "12.5K", fields["followers"])
	_, ok := fields["absent"]
	assert.False(t, ok, "unmatched fields must be absent, not empty")
}

func TestExtract_AttributeSuffix(t *testing.T) {
	page := &Page{URL: "https://example.com", HTML: profileHTML}

	fields, err := Extract(page, SelectorMap{
		"logo": {"img.logo@src"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/logo.png", fields["logo"])
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"4.2", 4.2, true},
		{"12.5K", 12500, true},
		{"12.5k followers", 12500, true},
		{"3,412 reviews", 3412, true},
		{"2.1M", 2.1e6, true},
		{"1B", 1e9, true},
		{"rated 4.8 out of 5", 4.8, true},
		{"", 0, false},
		{"no numbers here", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMetric(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 0.0001, "input %q", tt.in)
		}
	}
}

func TestProfileFor_SuffixMatch(t *testing.T) {
	sites := DefaultSites()

	p, ok := sites.ProfileFor("www.glassdoor.com")
	require.True(t, ok)
	assert.Equal(t, StrategyRendered, p.Strategy)

	p, ok = sites.ProfileFor("X.com")
	require.True(t, ok)
	assert.Equal(t, "mobile.x.com", p.AlternateHost)

	_, ok = sites.ProfileFor("unknown.example")
	assert.False(t, ok)
}
