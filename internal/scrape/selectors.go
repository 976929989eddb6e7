package scrape

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// SelectorMap maps a field name to an ordered list of CSS selector
// expressions. The first expression that matches a non-empty text node wins.
type SelectorMap map[string][]string

// Extract applies a selector map to a page and returns a flat field map.
// Fields with no matching selector are simply absent from the result.
func Extract(page *Page, selectors SelectorMap) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse html from %s", page.URL)
	}

	fields := make(map[string]string)
	for field, exprs := range selectors {
		for _, expr := range exprs {
			text := firstMatch(doc, expr)
			if text != "" {
				fields[field] = text
				break
			}
		}
	}
	return fields, nil
}

// firstMatch supports an optional "@attr" suffix on the selector expression
// to read an attribute instead of the node text.
func firstMatch(doc *goquery.Document, expr string) string {
	attr := ""
	if i := strings.LastIndex(expr, "@"); i > 0 {
		attr = expr[i+1:]
		expr = expr[:i]
	}

	var out string
	doc.Find(expr).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var text string
		if attr != "" {
			text, _ = s.Attr(attr)
		} else {
			text = s.Text()
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return true
		}
		out = text
		return false
	})
	return out
}

// ParseMetric extracts a numeric value from free text: the first embedded
// digit run, tolerating thousand separators and K/M/B magnitude suffixes
// ("1.2K followers" → 1200, "3,400 reviews" → 3400).
func ParseMetric(s string) (float64, bool) {
	runStart := -1
	var run strings.Builder
	var suffix byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			if runStart < 0 {
				runStart = i
			}
			run.WriteByte(c)
		case (c == ',' || c == '.') && runStart >= 0 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9':
			if c == '.' {
				run.WriteByte(c)
			}
			// Thousand separators are dropped.
		case runStart >= 0:
			if c == 'K' || c == 'k' || c == 'M' || c == 'm' || c == 'B' || c == 'b' {
				suffix = c
			}
			goto done
		}
	}
done:
	if run.Len() == 0 {
		return 0, false
	}

	val, err := strconv.ParseFloat(run.String(), 64)
	if err != nil {
		return 0, false
	}
	switch suffix {
	case 'K', 'k':
		val *= 1e3
	case 'M', 'm':
		val *= 1e6
	case 'B', 'b':
		val *= 1e9
	}
	return val, true
}
