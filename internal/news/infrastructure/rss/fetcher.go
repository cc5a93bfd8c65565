// Package rss fetches and parses RSS/Atom feeds for the ingestor,
// one feed entry per configured Source.
package rss

import (
	"context"
	"fmt"
	"time"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/mmcdole/gofeed"
)

// Fetcher pulls and parses a single feed URL with a bounded timeout.
type Fetcher struct {
	parser *gofeed.Parser
}

// NewFetcher builds a Fetcher around a shared gofeed.Parser, which
// gofeed documents as safe for concurrent use once constructed.
func NewFetcher() *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "stocks-news-agent/1.0 (+https://github.com/ChaneHaDa/stocks-news-agent-sub001)"
	return &Fetcher{parser: parser}
}

// Fetch parses feedURL within the given per-source timeout.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, timeout time.Duration) ([]domain.FeedItem, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(feedURL, fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", feedURL, err)
	}

	items := make([]domain.FeedItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		items = append(items, domain.FeedItem{
			Title:       entry.Title,
			Description: entry.Description,
			Content:     entry.Content,
			Link:        entry.Link,
			PublishedAt: published,
		})
	}
	return items, nil
}
