// Package newsfeed provides a client for RSS-based news search feeds.
package newsfeed

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// Fetcher executes the underlying HTTP GET. The resilient requester
// satisfies this.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error)
}

// Item is a single news article from a feed.
type Item struct {
	Title     string
	Link      string
	Source    string
	Snippet   string
	Published time.Time
}

// Client defines the news search operations.
type Client interface {
	// Search returns recent articles matching the query, newest first as
	// served by the feed.
	Search(ctx context.Context, query string) ([]Item, error)
}

// Option configures the newsfeed client.
type Option func(*feedClient)

// WithBaseURL sets a custom feed base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *feedClient) {
		c.baseURL = u
	}
}

// WithLanguage sets the feed language parameters.
func WithLanguage(lang, country string) Option {
	return func(c *feedClient) {
		c.lang = lang
		c.country = country
	}
}

type feedClient struct {
	fetcher Fetcher
	baseURL string
	lang    string
	country string
}

// NewClient creates a news search client backed by the Google News RSS feed.
func NewClient(fetcher Fetcher, opts ...Option) Client {
	c := &feedClient{
		fetcher: fetcher,
		baseURL: "https://news.google.com/rss/search",
		lang:    "en-US",
		country: "US",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rss mirrors the subset of RSS 2.0 the feed serves.
type rss struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Source      string `xml:"source"`
}

func (c *feedClient) Search(ctx context.Context, query string) ([]Item, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", c.lang)
	q.Set("gl", c.country)

	body, err := c.fetcher.Get(ctx, c.baseURL+"?"+q.Encode(), map[string]string{
		"Accept": "application/rss+xml, application/xml",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "newsfeed: search %q", query)
	}

	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "newsfeed: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var feed rss
	if err := decoder.Decode(&feed); err != nil {
		return nil, eris.Wrapf(err, "newsfeed: parse feed for %q", query)
	}

	items := make([]Item, 0, len(feed.Channel.Items))
	for _, ri := range feed.Channel.Items {
		item := Item{
			Title:   ri.Title,
			Link:    ri.Link,
			Source:  ri.Source,
			Snippet: ri.Description,
		}
		if t, perr := parsePubDate(ri.PubDate); perr == nil {
			item.Published = t
		}
		items = append(items, item)
	}
	return items, nil
}

func parsePubDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("newsfeed: unparseable pubDate %q", v)
}
