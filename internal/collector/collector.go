// Package collector implements per-source signal collection for a single
// entity, with deterministic synthetic fallbacks for unreliable upstreams.
package collector

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/brandscope/intel-cli/internal/model"
)

// Collector gathers one signal kind for one entity. Collect errors are
// absorbed by the runner via Mock, so implementations should return a real
// error instead of a degenerate payload when the upstream fails.
type Collector interface {
	Kind() model.SourceKind

	// Collect fetches live data for the entity within the given market area.
	Collect(ctx context.Context, entityID, areaID string) (*model.SourcePayload, error)

	// Mock produces a deterministic synthetic payload for the entity: stable
	// across repeated calls on the same day, plausibly varied per entity.
	Mock(entityID string) *model.SourcePayload
}

// slugify turns an entity id into a URL path segment ("Acme Corp" → "acme-corp").
func slugify(entityID string) string {
	s := strings.ToLower(strings.TrimSpace(entityID))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// textExcerpt extracts up to n characters of visible text from an HTML page
// for sentiment scoring.
func textExcerpt(html string, n int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > n {
		text = text[:n]
	}
	return text
}

// domainFor guesses the web domain for an entity: ids that already look like
// domains pass through, anything else is slugged onto .com.
func domainFor(entityID string) string {
	id := strings.ToLower(strings.TrimSpace(entityID))
	if strings.Contains(id, ".") && !strings.Contains(id, " ") {
		return id
	}
	return strings.ReplaceAll(slugify(entityID), "-", "") + ".com"
}
